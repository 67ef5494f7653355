package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyp0633/caldora-recur/internal/calexport"
	"github.com/cyp0633/caldora-recur/server/occurrence"
)

func newOccurrencesCommand(g *globals) *cobra.Command {
	var (
		from, to, format string
		types            []string
	)
	cmd := &cobra.Command{
		Use:     "occurrences",
		Aliases: []string{"ls"},
		Short:   "List occurrences starting inside [--from, --to)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseInstant("from", from)
			if err != nil {
				return err
			}
			end, err := parseInstant("to", to)
			if err != nil {
				return err
			}
			switch format {
			case "json", "ics", "xcal":
			default:
				return fmt.Errorf("unknown format %q (want json, ics or xcal)", format)
			}
			q := occurrence.Query{Scope: g.scope(), Start: start, End: end}
			if cmd.Flags().Changed("type") {
				q.Types = types
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				entries, err := a.svc.OccurrencesInRange(ctx, q)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch format {
				case "ics":
					return calexport.WriteICS(out, entries, time.Now())
				case "xcal":
					return calexport.WriteXCal(out, entries, time.Now())
				}
				return calexport.WriteJSON(out, entries)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&from, "from", "", "window start as an RFC 3339 instant")
	f.StringVar(&to, "to", "", "window end as an RFC 3339 instant")
	f.StringSliceVar(&types, "type", nil, "only these types")
	f.StringVarP(&format, "format", "f", "json", "output format: json, ics or xcal")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
