package api

import (
	"context"

	"choreboard/domain"
	"choreboard/engine"
)

// Boards resolves the active board for a scope. Implemented by
// engine.Manager.
type Boards interface {
	Board(ctx context.Context, scope string) (*engine.Board, error)
	Fallback(ctx context.Context, scope string) ([]domain.Task, []domain.Member, bool)
}

// Authenticator extracts the session from an Authorization header.
type Authenticator interface {
	SessionFromAuthHeader(string) (Session, error)
}

// Session identifies the caller: which scope they act on and whether they
// hold a full member session or a restricted share token.
type Session struct {
	UserID string
	Scope  string
	Mode   domain.SessionMode
}

// Deduper prevents reprocessing of duplicate commands.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Remove deletes a previously added key, used when dispatch fails.
	Remove(ctx context.Context, scope, key string) error
}
