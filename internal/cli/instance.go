package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyp0633/caldora-recur/server/occurrence"
)

func newInstanceCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage standalone instances",
	}
	cmd.AddCommand(newInstanceCreateCommand(g))
	return cmd
}

func newInstanceCreateCommand(g *globals) *cobra.Command {
	var (
		typ, start, zone string
		duration         time.Duration
		ext              map[string]string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a standalone instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime, err := parseInstant("start", start)
			if err != nil {
				return err
			}
			req := occurrence.InstanceRequest{
				Scope:      g.scope(),
				Type:       typ,
				StartTime:  startTime,
				Duration:   duration,
				TimeZone:   zone,
				Extensions: ext,
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				i, err := a.svc.CreateInstance(ctx, req)
				if err != nil {
					return err
				}
				return printEntry(cmd.OutOrStdout(), i)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&typ, "type", "", "entry type")
	f.StringVar(&start, "start", "", "start as an RFC 3339 instant")
	f.DurationVar(&duration, "duration", time.Hour, "length")
	f.StringVar(&zone, "tz", "", "optional IANA zone")
	f.StringToStringVar(&ext, "ext", nil, "extension key=value pairs")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}
