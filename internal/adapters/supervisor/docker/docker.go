package docker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"pm2gate/internal/core/domain"
)

// Supervisor treats local Docker containers as the managed process set,
// implementing the same port as the pm2 backend. Container logs under the
// json-file driver live in a single host-side file, reported as both
// channel paths; the streaming layer collapses identical paths to one
// cursor.
type Supervisor struct {
	cli *client.Client
}

func New() (*Supervisor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &Supervisor{cli: cli}, nil
}

func (s *Supervisor) List(ctx context.Context) ([]domain.ManagedProcess, error) {
	containers, err := s.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("%w: docker list: %v", domain.ErrSupervisorUnavailable, err)
	}

	procs := make([]domain.ManagedProcess, 0, len(containers))
	for _, c := range containers {
		p := domain.ManagedProcess{
			Name:          containerName(c.Names, c.ID),
			Status:        parseState(c.State),
			ExecutionMode: domain.ModeFork,
		}
		// Inspect fills in what the list endpoint omits; a container that
		// disappears mid-listing is simply skipped in degraded form.
		if info, err := s.cli.ContainerInspect(ctx, c.ID); err == nil {
			p.PID = info.State.Pid
			p.RestartCount = info.RestartCount
			p.ScriptPath = strings.Join(info.Config.Cmd, " ")
			p.StdoutLogPath = info.LogPath
			p.StderrLogPath = info.LogPath
			if started, err := time.Parse(time.RFC3339Nano, info.State.StartedAt); err == nil && !started.IsZero() {
				p.UptimeStart = started
			}
		}
		procs = append(procs, p)
	}
	return procs, nil
}

func (s *Supervisor) Start(ctx context.Context, name string) (domain.CommandResult, error) {
	err := s.cli.ContainerStart(ctx, name, container.StartOptions{})
	return s.result(ctx, "start", name, err)
}

func (s *Supervisor) Stop(ctx context.Context, name string) (domain.CommandResult, error) {
	err := s.cli.ContainerStop(ctx, name, container.StopOptions{})
	return s.result(ctx, "stop", name, err)
}

func (s *Supervisor) Restart(ctx context.Context, name string) (domain.CommandResult, error) {
	err := s.cli.ContainerRestart(ctx, name, container.StopOptions{})
	return s.result(ctx, "restart", name, err)
}

func (s *Supervisor) result(ctx context.Context, action, name string, err error) (domain.CommandResult, error) {
	if err == nil {
		return domain.CommandResult{OK: true, Message: fmt.Sprintf("docker %s %s succeeded", action, name)}, nil
	}
	// Daemon-level verdicts (no such container, already stopped) are
	// command outcomes; only an unreachable daemon is an error.
	if client.IsErrConnectionFailed(err) || ctx.Err() != nil {
		return domain.CommandResult{}, fmt.Errorf("%w: docker %s %s: %v", domain.ErrSupervisorUnavailable, action, name, err)
	}
	return domain.CommandResult{OK: false, Message: err.Error()}, nil
}

func containerName(names []string, id string) string {
	if len(names) > 0 {
		return strings.TrimPrefix(names[0], "/")
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func parseState(state string) domain.ProcessStatus {
	switch state {
	case "running":
		return domain.StatusOnline
	case "created", "exited", "paused", "removing":
		return domain.StatusStopped
	case "dead", "restarting":
		return domain.StatusErrored
	default:
		return domain.StatusUnknown
	}
}
