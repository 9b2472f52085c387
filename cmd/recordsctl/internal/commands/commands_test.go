package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/store/memory"
)

func newGlobals(t *testing.T) (*Globals, *bytes.Buffer) {
	t.Helper()
	t.Setenv("DISCIPLINARY_STORE_BACKEND", "memory")
	t.Setenv("DISCIPLINARY_BULK_ITEM_DELAY", "1ms")

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	out := &bytes.Buffer{}
	return &Globals{
		Out:   out,
		Store: memory.NewDocumentStore(),
		Now:   func() time.Time { return now },
	}, out
}

func TestRecordsWorkflow(t *testing.T) {
	ctx := context.Background()
	globals, out := newGlobals(t)

	run := func(t *testing.T, cmd interface {
		Run(context.Context, *Globals) error
	}) string {
		t.Helper()
		out.Reset()
		require.NoError(t, cmd.Run(ctx, globals))
		return out.String()
	}

	t.Run("create organization", func(t *testing.T) {
		require.Contains(t, run(t, &OrgCreateCmd{ID: "acme", Name: "Acme Ltd"}), "Created organization acme")
		require.Contains(t, run(t, &OrgListCmd{}), "Acme Ltd")
	})

	t.Run("import records", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "records.jsonl")
		lines := strings.Join([]string{
			`{"kind":"employees","id":"e1","description":"employee 1042","data":{"employeeNumber":"1042","firstName":"Ada","lastName":"Lovelace"}}`,
			`{"kind":"warnings","id":"w1","data":{"employeeId":"e1","employeeName":"Ada Lovelace","level":"final_written","status":"active","isActive":true,"issueDate":"2024-02-01T00:00:00Z"}}`,
			``,
			`{"kind":"warnings","id":"w2","data":{"employeeId":"e1"}}`,
		}, "\n")
		require.NoError(t, os.WriteFile(path, []byte(lines), 0600))

		output := run(t, &ImportCmd{Org: "acme", File: path})
		require.Contains(t, output, "[1/3]  33% employee 1042")
		require.Contains(t, output, "Imported 2 of 3 records (1 failed)")
		require.Contains(t, output, "line 3 warnings line 4")
	})

	t.Run("active index lists the warning", func(t *testing.T) {
		output := run(t, &IndexListCmd{Org: "acme", Limit: 10})
		require.Contains(t, output, "w1")
		require.Contains(t, output, "final_written")
		require.Contains(t, output, "2024-02-01 00:00:00")
	})

	t.Run("summary", func(t *testing.T) {
		output := run(t, &SummaryCmd{Org: "acme", Employee: "e1"})
		require.Contains(t, output, `"employeeId": "e1"`)
	})

	t.Run("archive and status", func(t *testing.T) {
		require.Contains(t, run(t, &ArchiveCmd{Org: "acme", Reason: "left", Actor: "u-7f3k", Employees: []string{"e1", "missing"}}),
			"1 archived, 1 failed")
		require.Contains(t, run(t, &StatusCmd{Org: "acme", Employee: "e1"}), "archived")
		require.Contains(t, run(t, &EligibleCmd{Org: "acme"}), "No employees are eligible")
	})

	t.Run("purge before retention is rejected", func(t *testing.T) {
		err := (&PurgeCmd{Org: "acme", Actor: "u-7f3k", Confirm: "DELETE-1042-7F3K", Employee: "e1"}).Run(ctx, globals)
		require.ErrorIs(t, err, store.ErrInvalidState)
	})

	t.Run("restore", func(t *testing.T) {
		require.Contains(t, run(t, &RestoreCmd{Org: "acme", Actor: "u-7f3k", Employee: "e1"}), "Restored employee e1")
	})

	t.Run("bulk update", func(t *testing.T) {
		require.Contains(t, run(t, &UpdateCmd{Org: "acme", Department: "Ops", Employees: []string{"e1"}}), "1 updated, 0 failed")
	})

	t.Run("rebuild and expire", func(t *testing.T) {
		require.Contains(t, run(t, &IndexRebuildCmd{Org: "acme"}), "Rebuilt indexes for acme")
		require.Contains(t, run(t, &IndexExpireCmd{Org: "acme"}), "Expired 0 warnings")
	})

	t.Run("unknown organization", func(t *testing.T) {
		err := (&IndexListCmd{Org: "nobody", Limit: 10}).Run(ctx, globals)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("deactivated organization", func(t *testing.T) {
		run(t, &OrgDeactivateCmd{ID: "acme"})
		err := (&IndexListCmd{Org: "acme", Limit: 10}).Run(ctx, globals)
		require.ErrorIs(t, err, store.ErrInvalidState)
	})
}

func TestReadItems(t *testing.T) {
	t.Run("rejects unknown kinds", func(t *testing.T) {
		_, err := readItems(strings.NewReader(`{"kind":"indexes/activeWarnings","data":{}}`))
		require.ErrorContains(t, err, "unknown kind")
	})

	t.Run("parses timestamps", func(t *testing.T) {
		items, err := readItems(strings.NewReader(`{"kind":"meetings","data":{"employeeId":"e1","scheduledAt":"2024-03-05T10:00:00Z","notes":"bring HR"}}`))
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), items[0].Data["scheduledAt"])
		require.Equal(t, "bring HR", items[0].Data["notes"])
		require.Equal(t, "meetings line 1", items[0].Description)
	})

	t.Run("reports malformed lines", func(t *testing.T) {
		_, err := readItems(strings.NewReader("{\"kind\":\"employees\"}\n{nope"))
		require.ErrorContains(t, err, "line 2")
	})
}

func TestMigrateMemory(t *testing.T) {
	globals, out := newGlobals(t)
	require.NoError(t, (&MigrateCmd{}).Run(context.Background(), globals))
	require.Contains(t, out.String(), "backend memory has nothing to migrate")
}
