package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"workermgr/internal/common/fsutil"
	"workermgr/internal/worker"
)

// process is a spawned worker. done is closed by the single waiter goroutine
// once the process has exited; err is valid after that.
type process struct {
	cmd        *exec.Cmd
	startTicks uint64
	done       chan struct{}
	err        error
}

func (p *process) pid() int { return p.cmd.Process.Pid }

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// createSyncFile creates path, truncating any previous content.
func createSyncFile(path string) (*os.File, error) {
	f, err := fsutil.CreateTruncated(path)
	if err != nil {
		return nil, fmt.Errorf("create sync file: %w", err)
	}
	return f, nil
}

// startProcess creates both sync files and starts the worker binary with
// stdout/stderr redirected into them and the worker Spec on stdin.
func (m *Manager) startProcess(spec worker.Spec, syncPath string) (*process, error) {
	payload, err := worker.EncodeSpec(spec)
	if err != nil {
		return nil, err
	}
	out, err := createSyncFile(syncPath + ".out")
	if err != nil {
		return nil, err
	}
	defer out.Close()
	errf, err := createSyncFile(syncPath + ".err")
	if err != nil {
		return nil, err
	}
	defer errf.Close()

	if m.workerBin == "" {
		return nil, errors.New("no worker binary configured")
	}
	cmd := exec.Command(m.workerBin, m.workerArgs...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = out
	cmd.Stderr = errf
	cmd.SysProcAttr = sysProcAttr()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", m.workerBin, err)
	}
	p := &process{cmd: cmd, done: make(chan struct{})}
	// read before the waiter runs; an exited but unreaped child keeps its stat
	p.startTicks, _ = procStartTicks(cmd.Process.Pid)
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// stop sends SIGTERM, waits up to grace (or until ctx ends), then kills.
// It returns once the process has been reaped.
func (p *process) stop(ctx context.Context, grace time.Duration) error {
	if p.exited() {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = p.cmd.Process.Kill()
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	case <-ctx.Done():
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", p.pid(), err)
	}
	<-p.done
	return nil
}
