package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestOperation(t *testing.T) {
	t.Run("logs failures at error level", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := zerolog.New(&buf).WithContext(context.Background())
		ctx = WithOrganization(ctx, "org-1", "archive")

		err := errors.New("boom")
		Operation(ctx, "archive", time.Now())(&err)

		require.Contains(t, buf.String(), `"level":"error"`)
		require.Contains(t, buf.String(), `"org_id":"org-1"`)
		require.Contains(t, buf.String(), `"error":"boom"`)
	})

	t.Run("logs success at debug level", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := zerolog.New(&buf).Level(zerolog.DebugLevel).WithContext(context.Background())

		var err error
		Operation(ctx, "restore", time.Now())(&err)

		require.Contains(t, buf.String(), `"level":"debug"`)
		require.Contains(t, buf.String(), `"op":"restore"`)
	})

	t.Run("nil error pointer", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := zerolog.New(&buf).Level(zerolog.DebugLevel).WithContext(context.Background())

		Operation(ctx, "noop", time.Now())(nil)
		require.Contains(t, buf.String(), "operation finished")
	})
}
