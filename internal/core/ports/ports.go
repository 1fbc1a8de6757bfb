package ports

import (
	"context"

	"pm2gate/internal/core/domain"
)

// Supervisor is the external process supervisor consumed by the gateway.
// List failures are reported as errors wrapping ErrSupervisorUnavailable;
// command-level failures (the supervisor ran the command and said no) are
// reported inside CommandResult, not as errors.
type Supervisor interface {
	List(ctx context.Context) ([]domain.ManagedProcess, error)
	Start(ctx context.Context, name string) (domain.CommandResult, error)
	Stop(ctx context.Context, name string) (domain.CommandResult, error)
	Restart(ctx context.Context, name string) (domain.CommandResult, error)
}

// ActionStore keeps a bounded, transient audit trail of control actions.
type ActionStore interface {
	Record(ctx context.Context, rec domain.ActionRecord) error
	Recent(ctx context.Context, process string, limit int) ([]domain.ActionRecord, error)
}

// EventPublisher fans control-action and session lifecycle events out to
// external consumers. Best effort; callers log and move on.
type EventPublisher interface {
	PublishAction(ctx context.Context, rec domain.ActionRecord) error
	PublishSession(ctx context.Context, process, event, sessionID string) error
}
