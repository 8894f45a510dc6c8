package manager

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"workermgr/internal/protocol"
)

// HandleConnection runs the command loop of one control connection: decode a
// request, dispatch it, write the response, repeat. The loop ends without
// error when the peer closes the connection between commands. A malformed
// request, a dispatch error or a non-200 response ends it with an error.
//
// The pending service of the connection starts empty and is replaced by every
// Load.
func (m *Manager) HandleConnection(ctx context.Context, rw io.ReadWriter) error {
	r := bufio.NewReader(rw)
	var st connState
	for {
		req, err := protocol.DecodeControl(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode request: %w", err)
		}

		res, err := m.dispatch(ctx, req, &st)
		if err != nil {
			return err
		}
		observeCommand(req.Cmd, res.Code)

		wire := res
		if req.Cmd == protocol.CmdScaleDown && !m.strictScaleDown {
			wire = Result{Code: 200, Message: msgScaleDownCompat}
		}
		if _, err := rw.Write(protocol.EncodeResponse(wire.Code, wire.Message)); err != nil {
			return fmt.Errorf("write response: %w", err)
		}

		if st.svc != nil && st.svc.Metrics().Len() > 0 {
			m.emitter.Emit(st.svc.Params().ModelName, st.svc.Metrics())
		}
		if !wire.OK() {
			return fmt.Errorf("%w: %s returned %d %q", ErrCommandFailed, commandName(req.Cmd), wire.Code, wire.Message)
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, req protocol.Request, st *connState) (Result, error) {
	switch req.Cmd {
	case protocol.CmdLoad:
		cmd, err := req.Load()
		if err != nil {
			return Result{}, err
		}
		svc, params, res, err := m.Load(ctx, cmd)
		if err != nil {
			return Result{}, err
		}
		st.svc, st.params = svc, params
		return res, nil
	case protocol.CmdScaleUp:
		cmd, err := req.ScaleUp()
		if err != nil {
			return Result{}, err
		}
		return m.ScaleUp(ctx, cmd, st.svc, st.params), nil
	case protocol.CmdScaleDown:
		cmd, err := req.ScaleDown()
		if err != nil {
			return Result{}, err
		}
		return m.ScaleDown(ctx, cmd), nil
	default:
		return Result{}, fmt.Errorf("%w: command %q is not accepted by the manager", protocol.ErrProtocol, req.Cmd)
	}
}
