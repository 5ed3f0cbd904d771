package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/terminus-io/storage-agent/pkg/client"
)

const defaultAgentAddr = "127.0.0.1:6020"

type clientOptions struct {
	addr    string
	timeout time.Duration
}

func (o *clientOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.addr, "addr", defaultAgentAddr, "RPC address of the storage agent")
	cmd.Flags().DurationVar(&o.timeout, "timeout", time.Minute, "request timeout")
}

// call dials the agent and runs fn with a bounded context.
func (o *clientOptions) call(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	c, err := client.NewClient(o.addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()
	return fn(ctx, c)
}

func newHelloCommand() *cobra.Command {
	opts := &clientOptions{}
	var callerID string
	cmd := &cobra.Command{
		Use:   "hello",
		Short: "Probe a running storage agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				msg, err := c.Hello(ctx, callerID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			})
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().StringVar(&callerID, "caller-id", "cli", "identifier sent with the probe")
	return cmd
}

func newCreateCommand() *cobra.Command {
	opts := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "create VOLUME_ID SIZE",
		Short: "Create a volume with a capacity limit, e.g. create k1 10Gi",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				path, err := c.Create(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func newRemoveCommand() *cobra.Command {
	opts := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "remove VOLUME_ID",
		Short: "Remove a volume and its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				return c.Remove(ctx, args[0])
			})
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func newResolveCommand() *cobra.Command {
	opts := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "resolve VOLUME_ID",
		Short: "Print the path a volume has on the agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) error {
				path, err := c.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	opts.addFlags(cmd)
	return cmd
}
