package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyp0633/caldora-recur/server/occurrence"
)

// entryInput reads one JSON entry, as printed by the other commands, from
// --file or standard input.
type entryInput struct {
	file string
}

func (in *entryInput) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.file, "file", "-", "JSON entry to act on; - reads standard input")
}

func (in *entryInput) read(cmd *cobra.Command) (occurrence.Entry, error) {
	var r io.Reader = cmd.InOrStdin()
	if in.file != "-" {
		f, err := os.Open(in.file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	return occurrence.UnmarshalEntry(data)
}

func newUpdateCommand(g *globals) *cobra.Command {
	var (
		in       entryInput
		start    string
		duration time.Duration
		ext      map[string]string
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a pattern, an instance or one occurrence",
		Long: `Reads an entry and persists its mutable fields, after applying any of
--start, --duration and --ext. Updating an occurrence records a modification
for it; the pattern and its other occurrences are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := in.read(cmd)
			if err != nil {
				return err
			}
			var startTime time.Time
			if start != "" {
				if startTime, err = parseInstant("start", start); err != nil {
					return err
				}
			}
			if err := applyChanges(e, startTime, duration, ext, cmd.Flags().Changed("ext")); err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				updated, err := a.svc.Update(ctx, e)
				if err != nil {
					return err
				}
				return printEntry(cmd.OutOrStdout(), updated)
			})
		},
	}
	in.register(cmd)
	f := cmd.Flags()
	f.StringVar(&start, "start", "", "new start as an RFC 3339 instant")
	f.DurationVar(&duration, "duration", 0, "new length")
	f.StringToStringVar(&ext, "ext", nil, "replace extensions with these key=value pairs")
	return cmd
}

// applyChanges sets the flag-supplied fields on e. Zero values leave a field alone.
func applyChanges(e occurrence.Entry, start time.Time, duration time.Duration, ext map[string]string, setExt bool) error {
	switch v := e.(type) {
	case *occurrence.PatternEntry:
		if !start.IsZero() {
			return &occurrence.ImmutableFieldError{Field: "startTime"}
		}
		if duration != 0 {
			v.Duration = duration
		}
		if setExt {
			v.Extensions = ext
		}
	case *occurrence.InstanceEntry:
		if !start.IsZero() {
			v.StartTime = start
		}
		if duration != 0 {
			v.Duration = duration
		}
		if setExt {
			v.Extensions = ext
		}
	case *occurrence.VirtualEntry:
		if !start.IsZero() {
			v.StartTime = start
		}
		if duration != 0 {
			v.Duration = duration
		}
		if setExt {
			v.Extensions = ext
		}
	}
	return nil
}

func newDeleteCommand(g *globals) *cobra.Command {
	var in entryInput
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a pattern or an instance, or cancel one occurrence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := in.read(cmd)
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				return a.svc.Delete(ctx, e)
			})
		},
	}
	in.register(cmd)
	return cmd
}

func newRestoreCommand(g *globals) *cobra.Command {
	var in entryInput
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Drop the modification of an occurrence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := in.read(cmd)
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				return a.svc.Restore(ctx, e)
			})
		},
	}
	in.register(cmd)
	return cmd
}
