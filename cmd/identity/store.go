package identity

import (
	"context"
	"errors"
)

// Store is the identity persistence boundary.
//
// Contract:
//   - Create rejects duplicate usernames/emails with ConflictError and
//     returns the record with Version 1.
//   - Get* return NotFoundError when nothing matches. Lookup keys are
//     normalized by the store.
//   - Update is a compare-and-swap on Version: it succeeds only when the
//     stored version equals rec.Version, and returns the record with the
//     bumped version. Otherwise it fails with ErrVersionConflict.
//   - Stores persist fields verbatim and never hash.
type Store interface {
	Create(ctx context.Context, rec Record) (Record, error)
	GetByID(ctx context.Context, id string) (Record, error)
	GetByUsername(ctx context.Context, username string) (Record, error)
	GetByEmail(ctx context.Context, email string) (Record, error)
	Update(ctx context.Context, rec Record) (Record, error)
}

// DefaultModifyAttempts bounds Modify retries on version conflicts.
const DefaultModifyAttempts = 4

// Modify loads the record, applies fn and saves it, retrying from a fresh
// read when another writer won the race. If fn returns an error nothing is
// saved and the error is returned as is.
func Modify(ctx context.Context, st Store, id string, fn func(*Record) error) (Record, error) {
	var lastErr error
	for attempt := 0; attempt < DefaultModifyAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}

		rec, err := st.GetByID(ctx, id)
		if err != nil {
			return Record{}, err
		}
		if err := fn(&rec); err != nil {
			return Record{}, err
		}

		out, err := st.Update(ctx, rec)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return Record{}, err
		}
		lastErr = err
	}
	return Record{}, lastErr
}
