package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/cyp0633/caldora-recur/server/occurrence"
)

func parseInstant(flag, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return t.UTC(), nil
}

func printEntry(w io.Writer, e occurrence.Entry) error {
	data, err := occurrence.MarshalEntry(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
