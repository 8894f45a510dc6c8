package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"workermgr/internal/client"
	"workermgr/internal/protocol"
)

type ctlOptions struct {
	network string
	addr    string
	timeout time.Duration
}

type modelFlags struct {
	path      string
	name      string
	handler   string
	gpu       int
	batchSize int
}

func (f *modelFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.path, "model-path", "", "Model directory")
	fs.StringVar(&f.name, "model-name", "", "Model name")
	fs.StringVar(&f.handler, "handler", "", "Handler override")
	fs.IntVar(&f.gpu, "gpu", 0, "GPU id")
	fs.IntVar(&f.batchSize, "batch-size", 0, "Batch size")
	_ = cmd.MarkFlagRequired("model-path")
	_ = cmd.MarkFlagRequired("model-name")
}

// command builds the Load request; optional fields are sent only when given.
func (f *modelFlags) command(cmd *cobra.Command) protocol.LoadCommand {
	lc := protocol.LoadCommand{ModelPath: f.path, ModelName: f.name}
	if cmd.Flags().Changed("handler") {
		lc.Handler = &f.handler
	}
	if cmd.Flags().Changed("gpu") {
		lc.GPU = &f.gpu
	}
	if cmd.Flags().Changed("batch-size") {
		lc.BatchSize = &f.batchSize
	}
	return lc
}

func buildCtlCmd() *cobra.Command {
	opts := &ctlOptions{}
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Send control commands to a running manager or worker",
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.network, "network", envStr("ctl-network", "unix"), "Socket network: unix|tcp")
	pf.StringVar(&opts.addr, "addr", envStr("ctl-addr", ""), "Socket path or host:port")
	pf.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall timeout per invocation")
	cmd.AddCommand(
		buildCtlLoadCmd(opts),
		buildCtlScaleUpCmd(opts),
		buildCtlScaleDownCmd(opts),
		buildCtlInferCmd(opts),
	)
	return cmd
}

// withClient dials, runs fn and prints every response as "code message".
// A non-200 response is reported as an error.
func withClient(cmd *cobra.Command, opts *ctlOptions, fn func(ctx context.Context, c *client.Client) ([]protocol.Response, error)) error {
	if opts.addr == "" {
		return fmt.Errorf("--addr is required")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()
	c, err := client.Dial(ctx, opts.network, opts.addr)
	if err != nil {
		return err
	}
	defer c.Close()
	resps, err := fn(ctx, c)
	for _, r := range resps {
		fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", r.Code, r.Message)
	}
	if err != nil {
		return err
	}
	for _, r := range resps {
		if r.Code != 200 {
			return fmt.Errorf("command failed with code %d", r.Code)
		}
	}
	return nil
}

func buildCtlLoadCmd(opts *ctlOptions) *cobra.Command {
	var mf modelFlags
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) ([]protocol.Response, error) {
				r, err := c.Load(ctx, mf.command(cmd))
				if err != nil {
					return nil, err
				}
				return []protocol.Response{r}, nil
			})
		},
	}
	mf.bind(cmd)
	return cmd
}

// Loaded models are per connection, so scale-up sends Load first on the same
// connection.
func buildCtlScaleUpCmd(opts *ctlOptions) *cobra.Command {
	var mf modelFlags
	var su protocol.ScaleUpCommand
	cmd := &cobra.Command{
		Use:   "scale-up",
		Short: "Load a model and start one worker for it",
		Example: "  workermgr ctl --addr /tmp/.ts.sock scale-up --model-path ./m --model-name m \\\n" +
			"    --sock-type unix --sock-name /tmp/.ts.sock.9000 --fifo-path /tmp/w9000",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) ([]protocol.Response, error) {
				lr, err := c.Load(ctx, mf.command(cmd))
				if err != nil {
					return nil, err
				}
				if lr.Code != 200 {
					return []protocol.Response{lr}, nil
				}
				ur, err := c.ScaleUp(ctx, su)
				if err != nil {
					return []protocol.Response{lr}, err
				}
				return []protocol.Response{lr, ur}, nil
			})
		},
	}
	mf.bind(cmd)
	f := cmd.Flags()
	f.StringVar(&su.SockType, "sock-type", protocol.SockUnix, "Worker socket type: unix|tcp")
	f.StringVar(&su.SockName, "sock-name", "", "Worker unix socket path")
	f.StringVar(&su.Host, "host", "", "Worker tcp host")
	f.StringVar(&su.Port, "port", "", "Worker tcp port")
	f.StringVar(&su.SyncPath, "fifo-path", "", "Synchronization file prefix")
	_ = cmd.MarkFlagRequired("fifo-path")
	return cmd
}

func buildCtlScaleDownCmd(opts *ctlOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "scale-down",
		Short: "Stop one worker by id (socket name or port)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) ([]protocol.Response, error) {
				r, err := c.ScaleDown(ctx, protocol.ScaleDownCommand{ID: id})
				if err != nil {
					return nil, err
				}
				return []protocol.Response{r}, nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Worker id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func buildCtlInferCmd(opts *ctlOptions) *cobra.Command {
	var body string
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Send one request to a worker socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) ([]protocol.Response, error) {
				r, err := c.Infer(ctx, []byte(body))
				if err != nil {
					return nil, err
				}
				return []protocol.Response{r}, nil
			})
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "Request body")
	return cmd
}
