package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	"github.com/spf13/cobra"

	"github.com/cyp0633/caldora-recur/server/occurrence"
	"github.com/cyp0633/caldora-recur/server/recurrence"
	"github.com/cyp0633/caldora-recur/server/storage"
)

func newPatternCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pattern",
		Short: "Create or import recurrence patterns",
	}
	cmd.AddCommand(newPatternCreateCommand(g), newPatternImportCommand(g))
	return cmd
}

func newPatternCreateCommand(g *globals) *cobra.Command {
	var (
		typ, start, end, rule, zone, strategy string
		duration                              time.Duration
		ext                                   map[string]string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a recurrence pattern",
		Example: `  caldora-recur pattern create --org acme --type standup --start 2024-01-01T09:00:00Z \
    --duration 15m --tz Europe/Berlin --rrule 'FREQ=WEEKLY;BYDAY=MO,WE;UNTIL=20241231T090000Z'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime, err := parseInstant("start", start)
			if err != nil {
				return err
			}
			req := occurrence.PatternRequest{
				Scope:      g.scope(),
				Type:       typ,
				StartTime:  startTime,
				Duration:   duration,
				RRule:      rule,
				TimeZone:   zone,
				Extensions: ext,
			}
			if end != "" {
				if req.RecurrenceEndTime, err = parseInstant("end", end); err != nil {
					return err
				}
			}
			if strategy != "" {
				req.MonthDayStrategy = mo.Some(storage.MonthDayStrategy(strategy))
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				p, err := a.svc.CreatePattern(ctx, req)
				if err != nil {
					return err
				}
				return printEntry(cmd.OutOrStdout(), p)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&typ, "type", "", "entry type")
	f.StringVar(&start, "start", "", "first occurrence as an RFC 3339 instant")
	f.DurationVar(&duration, "duration", time.Hour, "length of every occurrence")
	f.StringVar(&rule, "rrule", "", "RFC 5545 rule with a UTC UNTIL")
	f.StringVar(&end, "end", "", "recurrence end; must equal the rule's UNTIL")
	f.StringVar(&zone, "tz", "UTC", "IANA zone the rule is evaluated in")
	f.StringVar(&strategy, "month-day-strategy", "", "skip, clamp or throw for month days some months lack")
	f.StringToStringVar(&ext, "ext", nil, "extension key=value pairs")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("rrule")
	return cmd
}

func newPatternImportCommand(g *globals) *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Create patterns from the recurring VEVENTs of an iCalendar file",
		Long: `Every VEVENT with an RRULE becomes a pattern. CATEGORIES sets the type;
SUMMARY, DESCRIPTION, LOCATION, UID and X- properties become extensions.
Use "-" to read standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cal, err := readCalendar(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			var reqs []occurrence.PatternRequest
			for _, event := range cal.Events() {
				draft, err := recurrence.PatternFromComponent(event.Component)
				if err != nil {
					uid, _ := event.Props.Text(ical.PropUID)
					return fmt.Errorf("event %q: %w", uid, err)
				}
				req := occurrence.PatternRequest{
					Scope:             g.scope(),
					Type:              draft.Type,
					StartTime:         draft.StartTime,
					Duration:          draft.Duration,
					RRule:             draft.RRule,
					RecurrenceEndTime: draft.RecurrenceEndTime,
					TimeZone:          draft.TimeZone,
					Extensions:        draft.Extensions,
				}
				if strategy != "" {
					req.MonthDayStrategy = mo.Some(storage.MonthDayStrategy(strategy))
				}
				reqs = append(reqs, req)
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				for _, req := range reqs {
					p, err := a.svc.CreatePattern(ctx, req)
					if err != nil {
						return err
					}
					if err := printEntry(cmd.OutOrStdout(), p); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&strategy, "month-day-strategy", "", "strategy applied to every imported pattern")
	return cmd
}

func readCalendar(stdin io.Reader, path string) (*ical.Calendar, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}
	return cal, nil
}
