// Package worker is the entry point of a spawned model worker. The manager
// starts `workermgr worker` with a msgpack-encoded Spec on stdin and with
// stdout/stderr redirected to the worker's synchronization files; the worker
// reports readiness by writing ReadySentinel to stdout once its socket is bound
// and its service is constructed.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"workermgr/internal/common/fsutil"
	"workermgr/internal/protocol"
	"workermgr/internal/service"
)

// ReadySentinel is the line a worker writes once it accepts requests.
const ReadySentinel = "Model worker started."

// ErrManifestChanged is returned by Run when the manager loaded the model
// eagerly but the manifest the worker reads no longer declares a model file.
var ErrManifestChanged = errors.New("manifest no longer declares a model file")

// Spec is everything a worker needs to start.
type Spec struct {
	ID       string             `msgpack:"id"`
	SockType string             `msgpack:"sock_type"`
	SockName string             `msgpack:"sock_name"`
	Host     string             `msgpack:"host"`
	Port     string             `msgpack:"port"`
	Params   service.LoadParams `msgpack:"params"`
	// Eager is set when the manager already materialized the service. The
	// worker then expects an eager manifest and refuses to start otherwise.
	Eager bool `msgpack:"eager"`
}

func EncodeSpec(s Spec) ([]byte, error) { return msgpack.Marshal(&s) }

// DecodeSpec reads one Spec from r.
func DecodeSpec(r io.Reader) (Spec, error) {
	var s Spec
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return s, fmt.Errorf("decode worker spec: %w", err)
	}
	return s, nil
}

// Address returns the network and address the worker binds.
func (s Spec) Address() (network, addr string) {
	if s.SockType == protocol.SockUnix {
		return "unix", s.SockName
	}
	host := s.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return "tcp", net.JoinHostPort(host, s.Port)
}

// Run constructs the service, binds the worker socket, writes the readiness
// sentinel to ready and serves data-plane requests until ctx is canceled.
func Run(ctx context.Context, spec Spec, loader service.Loader, ready io.Writer, log zerolog.Logger) error {
	svc, err := loader.Load(ctx, spec.Params, true)
	if err != nil {
		return fmt.Errorf("load model %s: %w", spec.Params.ModelName, err)
	}
	mode := "scripted"
	if svc.Manifest().Eager() {
		mode = "eager"
	}
	if spec.Eager && mode != "eager" {
		return fmt.Errorf("model %s: %w", spec.Params.ModelName, ErrManifestChanged)
	}
	network, addr := spec.Address()
	if network == "unix" {
		if err := fsutil.RemoveStaleSocket(addr); err != nil {
			return err
		}
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", network, addr, err)
	}
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	log.Info().Str("worker_id", spec.ID).Int("pid", os.Getpid()).Str("addr", addr).Str("mode", mode).Msg("worker listening")
	if _, err := fmt.Fprintln(ready, ReadySentinel); err != nil {
		return fmt.Errorf("write readiness: %w", err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, svc, log)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, svc service.Service, log zerolog.Logger) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	r := bufio.NewReader(conn)
	for {
		req, err := protocol.Decode(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Warn().Err(err).Msg("data-plane connection closed")
			}
			return
		}
		code, body := int32(400), fmt.Sprintf("unsupported command %q", req.Cmd)
		if req.Cmd == protocol.CmdInfer {
			code, body = svc.Handle(ctx, req.Fields)
		}
		if _, err := conn.Write(protocol.EncodeResponse(code, body)); err != nil {
			return
		}
	}
}
