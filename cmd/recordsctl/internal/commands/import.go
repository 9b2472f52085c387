package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wolfeidau/disciplinary/internal/bulk"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/tenant"
)

type ImportCmd struct {
	Org   string `help:"Organization ID" required:""`
	File  string `arg:"" help:"JSON lines file, one record per line, or - for stdin"`
	Quiet bool   `help:"Suppress per item progress"`
}

// importLine is one record of an import file. String values in data that
// parse as RFC3339 timestamps are stored as timestamps.
type importLine struct {
	Kind        string         `json:"kind"`
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data"`
}

func (c *ImportCmd) Run(ctx context.Context, globals *Globals) error {
	var r io.Reader = os.Stdin
	if c.File != "-" {
		f, err := os.Open(c.File)
		if err != nil {
			return fmt.Errorf("failed to open import file: %w", err)
		}
		defer f.Close()
		r = f
	}

	items, err := readItems(r)
	if err != nil {
		return err
	}

	return withApp(ctx, globals, c.Org, func(a *app) error {
		out := globals.out()
		progress := func(p bulk.Progress) {
			if !c.Quiet {
				fmt.Fprintf(out, "[%d/%d] %3d%% %s\n", p.Processed, p.Total, p.Percent, p.Current)
			}
		}

		res, err := a.bulk.BulkCreate(ctx, c.Org, items, progress)
		if res != nil {
			fmt.Fprintf(out, "Imported %d of %d records (%d failed)\n", res.Success, len(items), res.Failed)
			for _, e := range res.Errors {
				fmt.Fprintf(out, "  line %d %s: %s (attempts: %d)\n", e.Index+1, e.Description, e.Error, e.Attempts)
			}
		}
		return err
	})
}

var importable = map[tenant.Kind]bool{
	tenant.KindEmployees: true,
	tenant.KindWarnings:  true,
	tenant.KindMeetings:  true,
	tenant.KindAbsences:  true,
}

func readItems(r io.Reader) ([]bulk.Item, error) {
	var items []bulk.Item

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var rec importLine
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		kind := tenant.Kind(rec.Kind)
		if !importable[kind] {
			return nil, fmt.Errorf("line %d: unknown kind %q", line, rec.Kind)
		}

		desc := rec.Description
		if desc == "" {
			desc = fmt.Sprintf("%s line %d", kind, line)
		}
		items = append(items, bulk.Item{
			Kind:        kind,
			ID:          rec.ID,
			Data:        parseTimes(rec.Data),
			Description: desc,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	return items, nil
}

func parseTimes(data map[string]any) store.Fields {
	out := make(store.Fields, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				out[k] = t
				continue
			}
		}
		out[k] = v
	}
	return out
}
