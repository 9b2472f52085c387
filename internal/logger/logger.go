package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// WithOrganization returns a context whose logger carries the organization and
// operation being performed. Handlers further down log through zerolog.Ctx.
func WithOrganization(ctx context.Context, orgID, operation string) context.Context {
	return zerolog.Ctx(ctx).With().
		Str("org_id", orgID).
		Str("operation", operation).
		Logger().WithContext(ctx)
}

// Operation logs the outcome and duration of a data operation. Use it as
//
//	defer logger.Operation(ctx, "archive", time.Now())(&err)
func Operation(ctx context.Context, name string, started time.Time) func(*error) {
	return func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}

		if err != nil {
			zerolog.Ctx(ctx).Error().
				Err(err).
				Str("op", name).
				Dur("duration", time.Since(started)).
				Msg("operation failed")
			return
		}

		zerolog.Ctx(ctx).Debug().
			Str("op", name).
			Dur("duration", time.Since(started)).
			Msg("operation finished")
	}
}
