package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		code int32
		msg  string
	}{
		{"ok", 200, "loaded model resnet"},
		{"empty message", 200, ""},
		{"oom", 507, "System out of memory"},
		{"negative code", -1, "x"},
		{"utf8", 500, "scale up failed: éè"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResponse(bytes.NewReader(EncodeResponse(tt.code, tt.msg)))
			require.NoError(t, err)
			require.Equal(t, Response{Code: tt.code, Message: tt.msg}, got)
		})
	}
}

func TestResponseTruncated(t *testing.T) {
	buf := EncodeResponse(200, "hello")
	for _, n := range []int{0, 3, 8, len(buf) - 1} {
		_, err := DecodeResponse(bytes.NewReader(buf[:n]))
		require.ErrorIs(t, err, ErrProtocol, "prefix %d", n)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	h := "echo"
	gpu, bs := 1, 8
	keys, fields := LoadCommand{ModelPath: "/m", ModelName: "mnist", Handler: &h, GPU: &gpu, BatchSize: &bs}.Fields()

	req, err := Decode(bytes.NewReader(EncodeRequest(CmdLoad, keys, fields)))
	require.NoError(t, err)
	require.Equal(t, CmdLoad, req.Cmd)

	lc, err := req.Load()
	require.NoError(t, err)
	require.Equal(t, "/m", lc.ModelPath)
	require.Equal(t, "mnist", lc.ModelName)
	require.Equal(t, "echo", *lc.Handler)
	require.Equal(t, 1, *lc.GPU)
	require.Equal(t, 8, *lc.BatchSize)
}

func TestDecodeMultipleRequests(t *testing.T) {
	var buf bytes.Buffer
	uk, uf := ScaleUpCommand{SockName: "/tmp/w.0", SockType: SockUnix, Port: "", SyncPath: "/tmp/w.0.sync"}.Fields()
	dk, df := ScaleDownCommand{ID: "/tmp/w.0"}.Fields()
	buf.Write(EncodeRequest(CmdScaleUp, uk, uf))
	buf.Write(EncodeRequest(CmdScaleDown, dk, df))

	r1, err := Decode(&buf)
	require.NoError(t, err)
	up, err := r1.ScaleUp()
	require.NoError(t, err)
	require.Equal(t, "/tmp/w.0", up.WorkerID())

	r2, err := Decode(&buf)
	require.NoError(t, err)
	down, err := r2.ScaleDown()
	require.NoError(t, err)
	require.Equal(t, "/tmp/w.0", down.ID)

	_, err = Decode(&buf)
	require.Equal(t, io.EOF, err)
}

func TestDecodeUnknownCommand(t *testing.T) {
	for _, tag := range []byte{'X', 0x00, 'l', 0xFF} {
		buf := EncodeRequest(tag, nil, nil)
		_, err := Decode(bytes.NewReader(buf))
		require.ErrorIs(t, err, ErrProtocol, "tag %q", tag)
	}
}

func TestDecodeControlAcceptsOnlyControlTags(t *testing.T) {
	for _, tag := range []byte{CmdLoad, CmdScaleUp, CmdScaleDown} {
		req, err := DecodeControl(bytes.NewReader(EncodeRequest(tag, nil, nil)))
		require.NoError(t, err, "tag %q", tag)
		require.Equal(t, tag, req.Cmd)
	}
	for _, tag := range []byte{CmdInfer, 'X', 0x00} {
		_, err := DecodeControl(bytes.NewReader(EncodeRequest(tag, nil, nil)))
		require.ErrorIs(t, err, ErrProtocol, "tag %q", tag)
	}
	// the worker data plane still decodes I
	req, err := Decode(bytes.NewReader(EncodeRequest(CmdInfer, nil, nil)))
	require.NoError(t, err)
	require.Equal(t, CmdInfer, req.Cmd)

	_, err = DecodeControl(bytes.NewReader(nil))
	require.Equal(t, io.EOF, err)
}

func TestDecodeMalformed(t *testing.T) {
	good := EncodeRequest(CmdScaleDown, []string{FieldPort}, map[string][]byte{FieldPort: []byte("9000")})

	tests := []struct {
		name string
		in   []byte
	}{
		{"truncated count", good[:3]},
		{"truncated key", good[:7]},
		{"truncated value", good[:len(good)-2]},
		{"too many fields", append([]byte{CmdLoad}, binary.BigEndian.AppendUint32(nil, MaxFields+1)...)},
		{"oversized key", append(append([]byte{CmdLoad}, binary.BigEndian.AppendUint32(nil, 1)...), binary.BigEndian.AppendUint32(nil, MaxKeyLen+1)...)},
		{"duplicate key", EncodeRequest(CmdLoad, []string{"a", "a"}, map[string][]byte{"a": []byte("1")})},
		{"empty key", EncodeRequest(CmdLoad, []string{""}, map[string][]byte{"": []byte("1")})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.in))
			require.ErrorIs(t, err, ErrProtocol)
		})
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string][]byte
		ok     bool
	}{
		{"minimal", map[string][]byte{FieldModelPath: []byte("/m"), FieldModelName: []byte("n")}, true},
		{"missing path", map[string][]byte{FieldModelName: []byte("n")}, false},
		{"missing name", map[string][]byte{FieldModelPath: []byte("/m")}, false},
		{"bad gpu", map[string][]byte{FieldModelPath: []byte("/m"), FieldModelName: []byte("n"), FieldGPU: []byte("zero")}, false},
		{"empty optional", map[string][]byte{FieldModelPath: []byte("/m"), FieldModelName: []byte("n"), FieldBatchSize: nil, FieldHandler: nil}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc, err := Request{Cmd: CmdLoad, Fields: tt.fields}.Load()
			if !tt.ok {
				require.ErrorIs(t, err, ErrProtocol)
				return
			}
			require.NoError(t, err)
			require.Nil(t, lc.Handler)
			require.Nil(t, lc.GPU)
			require.Nil(t, lc.BatchSize)
		})
	}
}

func TestScaleUpValidation(t *testing.T) {
	_, f := ScaleUpCommand{SockType: SockTCP, Host: "127.0.0.1", Port: "9001", SyncPath: "/tmp/s"}.Fields()
	up, err := Request{Cmd: CmdScaleUp, Fields: f}.ScaleUp()
	require.NoError(t, err)
	require.Equal(t, "9001", up.WorkerID())

	delete(f, FieldHost)
	_, err = Request{Cmd: CmdScaleUp, Fields: f}.ScaleUp()
	require.ErrorIs(t, err, ErrProtocol)

	_, f = ScaleUpCommand{SockType: "udp", Port: "1", SyncPath: "/tmp/s"}.Fields()
	_, err = Request{Cmd: CmdScaleUp, Fields: f}.ScaleUp()
	require.ErrorIs(t, err, ErrProtocol)
}

func TestScaleDownPrefersSockName(t *testing.T) {
	r := Request{Cmd: CmdScaleDown, Fields: map[string][]byte{FieldSockName: []byte("/s"), FieldPort: []byte("1")}}
	c, err := r.ScaleDown()
	require.NoError(t, err)
	require.Equal(t, "/s", c.ID)

	_, err = Request{Cmd: CmdScaleDown, Fields: map[string][]byte{}}.ScaleDown()
	require.True(t, errors.Is(err, ErrProtocol))
}
