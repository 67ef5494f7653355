package calexport

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cyp0633/caldora-recur/server/occurrence"
)

// WriteJSON encodes entries as an indented JSON array of occurrence.EntryJSON.
func WriteJSON(w io.Writer, entries []occurrence.Entry) error {
	out := make([]occurrence.EntryJSON, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			return fmt.Errorf("export: %w", occurrence.ErrIndeterminateEntry)
		}
		out = append(out, occurrence.ToJSON(e))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
