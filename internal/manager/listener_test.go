package manager

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"workermgr/internal/protocol"
)

func TestListenConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  ListenConfig
	}{
		{"unix without name", ListenConfig{SockType: protocol.SockUnix}},
		{"tcp without port", ListenConfig{SockType: protocol.SockTCP}},
		{"unknown type", ListenConfig{SockType: "udp", Port: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Listen(tt.cfg)
			if err == nil {
				_ = l.Close()
				t.Fatalf("expected error")
			}
			if !IsConfiguration(err) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestListenUnixRemovesStaleSocket(t *testing.T) {
	path := filepath.Join(sockDir(t), "mgr.sock")
	if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}
	l, err := Listen(ListenConfig{SockType: protocol.SockUnix, SockName: path})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Mode()&os.ModeSocket == 0 {
		t.Fatalf("expected a socket at %s: %v", path, err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("socket file should be removed on close: %v", err)
	}
}

func TestListenUnixInUse(t *testing.T) {
	path := filepath.Join(sockDir(t), "busy")
	if err := os.MkdirAll(filepath.Join(path, "child"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := Listen(ListenConfig{SockType: protocol.SockUnix, SockName: path})
	if !IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestListenTCPDefaultHost(t *testing.T) {
	l, err := Listen(ListenConfig{SockType: protocol.SockTCP, Port: "0"})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok || !addr.IP.Equal(net.ParseIP(DefaultHost)) {
		t.Fatalf("expected %s, got %v", DefaultHost, l.Addr())
	}
}

func TestServeAcceptTimeout(t *testing.T) {
	l, err := Listen(ListenConfig{SockType: protocol.SockTCP, Port: "0"})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()
	m := NewWithConfig(ManagerConfig{AcceptTimeout: 50 * time.Millisecond})
	if err := m.Serve(testCtx(t), l); !errors.Is(err, ErrAcceptTimeout) {
		t.Fatalf("expected ErrAcceptTimeout, got %v", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	l, err := Listen(ListenConfig{SockType: protocol.SockTCP, Port: "0"})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()
	m := NewWithConfig(ManagerConfig{NoAcceptTimeout: true})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, l) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve after cancel: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
}

func dialControl(t *testing.T, l *Listener) net.Conn {
	t.Helper()
	conn, err := net.Dial(l.Addr().Network(), l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, cmd byte, keys []string, fields map[string][]byte) protocol.Response {
	t.Helper()
	if _, err := conn.Write(protocol.EncodeRequest(cmd, keys, fields)); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp, err := protocol.DecodeResponse(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return resp
}

func TestServeFailedConnectionEndsServe(t *testing.T) {
	l, err := Listen(ListenConfig{SockType: protocol.SockUnix, SockName: filepath.Join(sockDir(t), "m.sock")})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()
	m := NewWithConfig(ManagerConfig{Loader: &fakeLoader{}, AcceptTimeout: 5 * time.Second})
	ctx := testCtx(t)
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, l) }()

	conn := dialControl(t, l)
	defer conn.Close()
	if _, err := conn.Write(protocol.EncodeRequest(protocol.CmdInfer, nil, nil)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, protocol.ErrProtocol) {
			t.Fatalf("expected protocol error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return")
	}
}

// End to end over a unix control socket: load, scale up, scale down, then a
// second connection after the first one closed.
func TestServeScaleUpScaleDownOverSocket(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	l, err := Listen(ListenConfig{SockType: protocol.SockUnix, SockName: filepath.Join(sockDir(t), "m.sock")})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()
	m := newTestManager(t, ManagerConfig{Loader: &fakeLoader{}, AcceptTimeout: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, l) }()

	conn := dialControl(t, l)
	keys, f := protocol.LoadCommand{ModelPath: t.TempDir(), ModelName: "squeezenet"}.Fields()
	if resp := roundTrip(t, conn, protocol.CmdLoad, keys, f); resp.Code != 200 || resp.Message != "loaded model squeezenet" {
		t.Fatalf("load: %+v", resp)
	}
	up := protocol.ScaleUpCommand{SockType: protocol.SockTCP, Host: "127.0.0.1", Port: "9200", SyncPath: filepath.Join(t.TempDir(), "w9200")}
	keys, f = up.Fields()
	if resp := roundTrip(t, conn, protocol.CmdScaleUp, keys, f); resp.Code != 200 || resp.Message != "scaled up" {
		t.Fatalf("scale up: %+v", resp)
	}
	if m.WorkerCount() != 1 {
		t.Fatalf("expected one worker, got %d", m.WorkerCount())
	}
	keys, f = protocol.ScaleDownCommand{ID: "9200"}.Fields()
	if resp := roundTrip(t, conn, protocol.CmdScaleDown, keys, f); resp.Code != 200 || resp.Message != "DONE" {
		t.Fatalf("scale down: %+v", resp)
	}
	if m.WorkerCount() != 0 {
		t.Fatalf("expected no workers, got %d", m.WorkerCount())
	}
	_ = conn.Close()

	// the listener resumes accepting after a clean close
	conn = dialControl(t, l)
	defer conn.Close()
	if resp := roundTrip(t, conn, protocol.CmdScaleDown, keys, f); resp.Code != 200 || resp.Message != "DONE" {
		t.Fatalf("second connection: %+v", resp)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
}
