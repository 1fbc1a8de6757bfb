package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pm2gate/internal/core/circuitbreaker"
	"pm2gate/internal/core/domain"
	"pm2gate/internal/core/logger"
	"pm2gate/internal/core/ports"
)

var commandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "supervisor_commands_total",
		Help: "Total number of supervisor control commands by action and outcome",
	},
	[]string{"action", "outcome"},
)

// ProcessService is the directory and control surface over the external
// supervisor. Every read hits the supervisor; nothing is cached here. All
// supervisor calls run behind a circuit breaker so a wedged supervisor
// fails fast instead of piling up blocked commands.
type ProcessService struct {
	sup     ports.Supervisor
	breaker *circuitbreaker.CircuitBreaker
	actions ports.ActionStore    // optional
	events  ports.EventPublisher // optional
}

func NewProcessService(sup ports.Supervisor, actions ports.ActionStore, events ports.EventPublisher) *ProcessService {
	return &ProcessService{
		sup:     sup,
		breaker: circuitbreaker.New("supervisor"),
		actions: actions,
		events:  events,
	}
}

// List returns the live process list. On supervisor failure it returns an
// empty slice together with an error wrapping ErrSupervisorUnavailable;
// it never panics or lets a supervisor fault escape raw.
func (s *ProcessService) List(ctx context.Context) ([]domain.ManagedProcess, error) {
	var procs []domain.ManagedProcess
	err := s.breaker.Execute(ctx, func() error {
		var err error
		procs, err = s.sup.List(ctx)
		return err
	})
	if err != nil {
		logger.Error("supervisor list failed", "err", err)
		return []domain.ManagedProcess{}, s.unavailable(err)
	}
	return procs, nil
}

// Get returns one process by name. Absence is ErrProcessNotFound, a
// first-class result rather than a fault.
func (s *ProcessService) Get(ctx context.Context, name string) (*domain.ManagedProcess, error) {
	procs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range procs {
		if procs[i].Name == name {
			return &procs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrProcessNotFound, name)
}

// Start issues a start command. No existence pre-check: starting a
// process the supervisor knows but has stopped is the main use case, and
// the supervisor's own verdict is surfaced either way.
func (s *ProcessService) Start(ctx context.Context, name string) (domain.CommandResult, error) {
	return s.command(ctx, "start", name, s.sup.Start, false)
}

// Stop issues a stop command after re-validating existence. Stopping an
// already-stopped process is not an error; the supervisor's outcome is
// returned as-is.
func (s *ProcessService) Stop(ctx context.Context, name string) (domain.CommandResult, error) {
	return s.command(ctx, "stop", name, s.sup.Stop, true)
}

// Restart issues a restart command after re-validating existence.
func (s *ProcessService) Restart(ctx context.Context, name string) (domain.CommandResult, error) {
	return s.command(ctx, "restart", name, s.sup.Restart, true)
}

func (s *ProcessService) command(ctx context.Context, action, name string, fn func(context.Context, string) (domain.CommandResult, error), checkExists bool) (domain.CommandResult, error) {
	if checkExists {
		// The process may vanish between this check and the command; the
		// supervisor is the authority and a stale command simply fails
		// with its own error.
		if _, err := s.Get(ctx, name); err != nil {
			commandsTotal.WithLabelValues(action, "rejected").Inc()
			return domain.CommandResult{}, err
		}
	}

	var res domain.CommandResult
	err := s.breaker.Execute(ctx, func() error {
		var err error
		res, err = fn(ctx, name)
		return err
	})
	if err != nil {
		logger.Error("supervisor command failed", "action", action, "process", name, "err", err)
		commandsTotal.WithLabelValues(action, "unavailable").Inc()
		return domain.CommandResult{}, s.unavailable(err)
	}

	outcome := "ok"
	if !res.OK {
		outcome = "failed"
	}
	commandsTotal.WithLabelValues(action, outcome).Inc()
	s.record(ctx, domain.ActionRecord{
		Process: name,
		Action:  action,
		OK:      res.OK,
		Message: res.Message,
		At:      time.Now(),
	})
	return res, nil
}

// Recent returns the audit trail for one process, or ErrNoActionStore
// when the feature is not configured.
func (s *ProcessService) Recent(ctx context.Context, name string, limit int) ([]domain.ActionRecord, error) {
	if s.actions == nil {
		return nil, ErrNoActionStore
	}
	return s.actions.Recent(ctx, name, limit)
}

var ErrNoActionStore = errors.New("action history not configured")

func (s *ProcessService) record(ctx context.Context, rec domain.ActionRecord) {
	if s.actions != nil {
		if err := s.actions.Record(ctx, rec); err != nil {
			logger.Warn("action record failed", "process", rec.Process, "err", err)
		}
	}
	if s.events != nil {
		if err := s.events.PublishAction(ctx, rec); err != nil {
			logger.Warn("action publish failed", "process", rec.Process, "err", err)
		}
	}
}

func (s *ProcessService) unavailable(err error) error {
	if errors.Is(err, domain.ErrSupervisorUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrSupervisorUnavailable, err)
}
