package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Command tags. The manager accepts L, U and D; I is the worker data plane.
const (
	CmdLoad      byte = 'L'
	CmdScaleUp   byte = 'U'
	CmdScaleDown byte = 'D'
	CmdInfer     byte = 'I'
)

// Framing limits.
const (
	MaxFields     = 64
	MaxKeyLen     = 256
	MaxValueLen   = 1 << 20
	MaxMessageLen = 1 << 20
)

// ErrProtocol marks malformed, truncated or unrecognized framing.
var ErrProtocol = errors.New("protocol error")

func protoErr(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, a...))
}

// Request is one decoded command: a tag plus named raw byte-string fields.
type Request struct {
	Cmd    byte
	Fields map[string][]byte
}

func validTag(b byte) bool {
	return controlTag(b) || b == CmdInfer
}

func controlTag(b byte) bool {
	switch b {
	case CmdLoad, CmdScaleUp, CmdScaleDown:
		return true
	}
	return false
}

// Decode reads one framed request with any known tag from r.
// Wire format: [tag:1][nfields:4 BE] then per field [klen:4 BE][key][vlen:4 BE][value].
// A clean io.EOF before the tag byte is returned unwrapped.
func Decode(r io.Reader) (Request, error) { return decode(r, validTag) }

// DecodeControl is Decode for the manager socket: only L, U and D are
// accepted, any other tag is a protocol error.
func DecodeControl(r io.Reader) (Request, error) { return decode(r, controlTag) }

func decode(r io.Reader, allowed func(byte) bool) (Request, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Request{}, io.EOF
		}
		return Request{}, fmt.Errorf("read command: %w", err)
	}
	if !allowed(tag[0]) {
		return Request{}, protoErr("unknown command 0x%02x", tag[0])
	}
	n, err := readU32(r)
	if err != nil {
		return Request{}, err
	}
	if n > MaxFields {
		return Request{}, protoErr("too many fields: %d", n)
	}
	req := Request{Cmd: tag[0], Fields: make(map[string][]byte, n)}
	for i := uint32(0); i < n; i++ {
		key, err := readChunk(r, MaxKeyLen)
		if err != nil {
			return Request{}, err
		}
		if len(key) == 0 {
			return Request{}, protoErr("empty field name")
		}
		val, err := readChunk(r, MaxValueLen)
		if err != nil {
			return Request{}, err
		}
		k := string(key)
		if _, dup := req.Fields[k]; dup {
			return Request{}, protoErr("duplicate field %q", k)
		}
		req.Fields[k] = val
	}
	return req, nil
}

// EncodeRequest builds the wire form of a request. Field order follows keys.
func EncodeRequest(cmd byte, keys []string, fields map[string][]byte) []byte {
	size := 5
	for _, k := range keys {
		size += 8 + len(k) + len(fields[k])
	}
	buf := make([]byte, 0, size)
	buf = append(buf, cmd)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		v := fields[k]
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(k)))
		buf = append(buf, k...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

// Response is the reply to one command.
type Response struct {
	Code    int32
	Message string
}

// EncodeResponse produces a self-delimiting response buffer.
// Wire format: [code:4 BE signed][mlen:4 BE][message].
func EncodeResponse(code int32, message string) []byte {
	buf := make([]byte, 8, 8+len(message))
	binary.BigEndian.PutUint32(buf[0:4], uint32(code))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(message)))
	return append(buf, message...)
}

// DecodeResponse reads one response written by EncodeResponse.
func DecodeResponse(r io.Reader) (Response, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Response{}, truncated("response header", err)
	}
	code := int32(binary.BigEndian.Uint32(hdr[0:4]))
	n := binary.BigEndian.Uint32(hdr[4:8])
	if n > MaxMessageLen {
		return Response{}, protoErr("response message too long: %d", n)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		return Response{}, truncated("response message", err)
	}
	return Response{Code: code, Message: string(msg)}, nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, truncated("length", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readChunk(r io.Reader, limit uint32) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, protoErr("chunk length %d exceeds %d", n, limit)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, truncated("chunk", err)
	}
	return b, nil
}

// truncated converts short reads into protocol errors and keeps other
// transport errors (timeouts, resets) visible through %w.
func truncated(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return protoErr("truncated %s", what)
	}
	return fmt.Errorf("read %s: %w", what, err)
}
