package protocol

import (
	"strconv"
)

// Wire field names.
const (
	FieldModelPath = "modelPath"
	FieldModelName = "modelName"
	FieldHandler   = "handler"
	FieldGPU       = "gpu"
	FieldBatchSize = "batchSize"

	FieldSockName = "sock_name"
	FieldSockType = "sock_type"
	FieldHost     = "host"
	FieldPort     = "port"
	FieldSyncPath = "fifo_path"

	FieldBody = "body"
)

// Socket kinds accepted in ScaleUp and in the manager configuration.
const (
	SockUnix = "unix"
	SockTCP  = "tcp"
)

// LoadCommand asks the manager to load a model.
type LoadCommand struct {
	ModelPath string
	ModelName string
	Handler   *string
	GPU       *int
	BatchSize *int
}

// ScaleUpCommand asks the manager to spawn one worker.
type ScaleUpCommand struct {
	SockName string
	SockType string
	Host     string
	Port     string
	SyncPath string
}

// WorkerID is the store key: the socket name when present, else the port.
func (c ScaleUpCommand) WorkerID() string {
	if c.SockName != "" {
		return c.SockName
	}
	return c.Port
}

// ScaleDownCommand asks the manager to terminate one worker.
type ScaleDownCommand struct {
	ID string
}

func (r Request) str(key string) (string, bool) {
	v, ok := r.Fields[key]
	return string(v), ok
}

func (r Request) required(key string) (string, error) {
	v, ok := r.str(key)
	if !ok {
		return "", protoErr("command %q missing field %q", r.Cmd, key)
	}
	return v, nil
}

func (r Request) optionalInt(key string) (*int, error) {
	v, ok := r.Fields[key]
	if !ok || len(v) == 0 {
		return nil, nil
	}
	n, err := strconv.Atoi(string(v))
	if err != nil {
		return nil, protoErr("field %q is not an integer: %q", key, v)
	}
	return &n, nil
}

// Load validates a CmdLoad request.
func (r Request) Load() (LoadCommand, error) {
	if r.Cmd != CmdLoad {
		return LoadCommand{}, protoErr("not a load command: %q", r.Cmd)
	}
	var c LoadCommand
	var err error
	if c.ModelPath, err = r.required(FieldModelPath); err != nil {
		return LoadCommand{}, err
	}
	if c.ModelName, err = r.required(FieldModelName); err != nil {
		return LoadCommand{}, err
	}
	if c.ModelPath == "" || c.ModelName == "" {
		return LoadCommand{}, protoErr("empty model path or name")
	}
	if h, ok := r.str(FieldHandler); ok && h != "" {
		c.Handler = &h
	}
	if c.GPU, err = r.optionalInt(FieldGPU); err != nil {
		return LoadCommand{}, err
	}
	if c.BatchSize, err = r.optionalInt(FieldBatchSize); err != nil {
		return LoadCommand{}, err
	}
	return c, nil
}

// ScaleUp validates a CmdScaleUp request. Every key must be present;
// values may be empty (a tcp worker carries no socket name).
func (r Request) ScaleUp() (ScaleUpCommand, error) {
	if r.Cmd != CmdScaleUp {
		return ScaleUpCommand{}, protoErr("not a scale-up command: %q", r.Cmd)
	}
	var c ScaleUpCommand
	for key, dst := range map[string]*string{
		FieldSockName: &c.SockName,
		FieldSockType: &c.SockType,
		FieldHost:     &c.Host,
		FieldPort:     &c.Port,
		FieldSyncPath: &c.SyncPath,
	} {
		v, err := r.required(key)
		if err != nil {
			return ScaleUpCommand{}, err
		}
		*dst = v
	}
	if c.SockType != SockUnix && c.SockType != SockTCP {
		return ScaleUpCommand{}, protoErr("unknown socket type %q", c.SockType)
	}
	if c.SyncPath == "" {
		return ScaleUpCommand{}, protoErr("empty %s", FieldSyncPath)
	}
	if c.WorkerID() == "" {
		return ScaleUpCommand{}, protoErr("scale-up needs %s or %s", FieldSockName, FieldPort)
	}
	return c, nil
}

// ScaleDown validates a CmdScaleDown request. The id is read from sock_name,
// falling back to port.
func (r Request) ScaleDown() (ScaleDownCommand, error) {
	if r.Cmd != CmdScaleDown {
		return ScaleDownCommand{}, protoErr("not a scale-down command: %q", r.Cmd)
	}
	if v, ok := r.str(FieldSockName); ok && v != "" {
		return ScaleDownCommand{ID: v}, nil
	}
	if v, ok := r.str(FieldPort); ok && v != "" {
		return ScaleDownCommand{ID: v}, nil
	}
	return ScaleDownCommand{}, protoErr("scale-down needs %s or %s", FieldSockName, FieldPort)
}

// Fields renders the command back to wire fields, in a stable key order.
func (c LoadCommand) Fields() ([]string, map[string][]byte) {
	keys := []string{FieldModelPath, FieldModelName}
	f := map[string][]byte{
		FieldModelPath: []byte(c.ModelPath),
		FieldModelName: []byte(c.ModelName),
	}
	if c.Handler != nil {
		keys = append(keys, FieldHandler)
		f[FieldHandler] = []byte(*c.Handler)
	}
	if c.GPU != nil {
		keys = append(keys, FieldGPU)
		f[FieldGPU] = []byte(strconv.Itoa(*c.GPU))
	}
	if c.BatchSize != nil {
		keys = append(keys, FieldBatchSize)
		f[FieldBatchSize] = []byte(strconv.Itoa(*c.BatchSize))
	}
	return keys, f
}

func (c ScaleUpCommand) Fields() ([]string, map[string][]byte) {
	return []string{FieldSockName, FieldSockType, FieldHost, FieldPort, FieldSyncPath},
		map[string][]byte{
			FieldSockName: []byte(c.SockName),
			FieldSockType: []byte(c.SockType),
			FieldHost:     []byte(c.Host),
			FieldPort:     []byte(c.Port),
			FieldSyncPath: []byte(c.SyncPath),
		}
}

func (c ScaleDownCommand) Fields() ([]string, map[string][]byte) {
	return []string{FieldPort}, map[string][]byte{FieldPort: []byte(c.ID)}
}
