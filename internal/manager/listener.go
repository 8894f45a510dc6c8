package manager

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"workermgr/internal/common/fsutil"
	"workermgr/internal/protocol"
)

// DefaultHost is bound when a tcp listener has no host.
const DefaultHost = "127.0.0.1"

// ListenConfig selects the control socket.
type ListenConfig struct {
	SockType string
	SockName string
	Host     string
	Port     string
}

// Listener is the manager's control socket.
type Listener struct {
	ln   net.Listener
	path string // unix socket file, removed on Close
}

// Listen binds the control socket. A stale unix socket file is removed first;
// if it cannot be removed the socket is considered in use.
func Listen(cfg ListenConfig) (*Listener, error) {
	switch cfg.SockType {
	case protocol.SockUnix:
		if cfg.SockName == "" {
			return nil, configurationError{msg: "no socket name given for sock_type unix"}
		}
		if err := fsutil.RemoveStaleSocket(cfg.SockName); err != nil {
			return nil, configurationError{msg: "control socket", err: err}
		}
		ln, err := net.Listen("unix", cfg.SockName)
		if err != nil {
			return nil, configurationError{msg: "listen on " + cfg.SockName, err: err}
		}
		return &Listener{ln: ln, path: cfg.SockName}, nil
	case protocol.SockTCP:
		if cfg.Port == "" {
			return nil, configurationError{msg: "no socket port given for sock_type tcp"}
		}
		host := cfg.Host
		if host == "" {
			host = DefaultHost
		}
		ln, err := net.Listen("tcp", net.JoinHostPort(host, cfg.Port))
		if err != nil {
			return nil, configurationError{msg: "listen on " + net.JoinHostPort(host, cfg.Port), err: err}
		}
		return &Listener{ln: ln}, nil
	default:
		return nil, configurationError{msg: fmt.Sprintf("unsupported sock_type %q", cfg.SockType)}
	}
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting and removes the unix socket file.
func (l *Listener) Close() error {
	err := l.ln.Close()
	if l.path != "" {
		if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

func (l *Listener) accept(timeout time.Duration) (net.Conn, error) {
	if d, ok := l.ln.(deadliner); ok {
		var t time.Time
		if timeout > 0 {
			t = time.Now().Add(timeout)
		}
		if err := d.SetDeadline(t); err != nil {
			return nil, err
		}
	}
	return l.ln.Accept()
}

// Serve accepts control connections one at a time and runs each to
// completion. It returns nil when ctx is canceled, ErrAcceptTimeout when no
// connection arrives within the accept timeout, and the connection's error
// when a connection fails.
func (m *Manager) Serve(ctx context.Context, l *Listener) error {
	log := m.log.With().Str("addr", l.Addr().String()).Logger()
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()

	for {
		conn, err := l.accept(m.acceptTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Error().Msgf("did not receive connection in %s", m.acceptTimeout)
				return ErrAcceptTimeout
			}
			return fmt.Errorf("accept: %w", err)
		}
		log.Info().Msg("connection accepted")
		err = m.serveConn(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Error().Err(err).Msg("connection failed")
			return err
		}
		log.Info().Msg("connection closed by peer")
	}
}

func (m *Manager) serveConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	return m.HandleConnection(ctx, conn)
}
