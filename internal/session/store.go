package session

import (
	"context"

	"github.com/victornm/livequiz/internal/domain"
)

// Store persists sessions together with their full roster and answer log.
//
// Versions implement optimistic concurrency: Create stores version 1 and Save
// only succeeds when the stored version still equals snap.Version.
type Store interface {
	// Create returns domain.ErrSessionCodeTaken when the code is already used.
	Create(ctx context.Context, snap domain.SessionSnapshot) (version int64, err error)

	// Get and GetByCode return domain.ErrSessionNotFound when nothing matches.
	Get(ctx context.Context, id string) (domain.SessionSnapshot, error)
	GetByCode(ctx context.Context, code string) (domain.SessionSnapshot, error)

	// Save returns domain.ErrConcurrentModification when snap.Version is stale.
	Save(ctx context.Context, snap domain.SessionSnapshot) (version int64, err error)
}
