package storage

import (
	"context"

	"choreboard/domain"
)

// Gateway is the persistence boundary for one entity type. Every call is
// scoped to a single household; no call may span scopes. Implementations are
// provided by the hosted backend (Tables) or in-memory for tests and local
// runs (Memory). All failures are recoverable by design.
type Gateway[E domain.Entity[E]] interface {
	// FetchAll returns the full current collection for the scope.
	FetchAll(ctx context.Context, scope string) ([]E, error)
	// Insert persists a draft and returns the server-assigned id.
	Insert(ctx context.Context, scope string, draft E) (string, error)
	// Update replaces the stored row for the entity's id.
	Update(ctx context.Context, scope string, ent E) error
	// Delete removes the row. Deleting an absent row is not an error.
	Delete(ctx context.Context, scope string, id string) error
}

// Notifier receives a change notification after a successful write. It
// stands in for the managed backend's change feed emitter.
type Notifier interface {
	Notify(ctx context.Context, scope, entityType string, kind domain.ChangeKind, id string, row any)
}
