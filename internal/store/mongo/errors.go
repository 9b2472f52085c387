package mongo

import (
	"errors"
	"fmt"

	"github.com/wolfeidau/disciplinary/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	// writeConflictCode is the server error code for a write conflict between
	// concurrent transactions.
	writeConflictCode = 112

	// unauthorizedCode is returned when the connected user lacks the role for
	// a command.
	unauthorizedCode = 13

	transientTransactionLabel = "TransientTransactionError"
	unknownCommitResultLabel  = "UnknownTransactionCommitResult"
)

// mapMongoError maps MongoDB driver errors to the store error taxonomy.
// Returns the original error if it doesn't match known patterns.
func mapMongoError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}

	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: duplicate key: %w", store.ErrConflict, err)
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		switch {
		case serverErr.HasErrorCode(writeConflictCode):
			return fmt.Errorf("%w: write conflict: %w", store.ErrConflict, err)
		case serverErr.HasErrorCode(unauthorizedCode):
			return fmt.Errorf("%w: %w", store.ErrPermissionDenied, err)
		case serverErr.HasErrorLabel(transientTransactionLabel),
			serverErr.HasErrorLabel(unknownCommitResultLabel):
			return fmt.Errorf("%w: transaction aborted: %w", store.ErrTransient, err)
		}
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return fmt.Errorf("%w: %w", store.ErrTransient, err)
	}

	return err
}
