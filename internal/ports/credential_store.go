package ports

import (
	"context"

	"github.com/bnema/procure-cli/internal/domain"
)

// CredentialStore is the single durable home of the Session. Read returns
// nil without error when no usable session is persisted; implementations
// must treat a corrupt record as absent and purge it rather than fail.
// All durable mutation goes through Write and Clear.
type CredentialStore interface {
	Read(ctx context.Context) (*domain.Session, error)
	Write(ctx context.Context, session domain.Session) error
	Clear(ctx context.Context) error
}

// CredentialFeed delivers changes made to the store by other processes.
// A store's own writes must not loop back through its feed. The callback
// receives the new session, or nil when the store was cleared.
type CredentialFeed interface {
	Watch(ctx context.Context, fn func(session *domain.Session)) (stop func(), err error)
}
