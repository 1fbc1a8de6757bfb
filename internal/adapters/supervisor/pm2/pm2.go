package pm2

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"pm2gate/internal/core/domain"
)

// Supervisor drives the pm2 CLI. pm2 exposes no stable wire API, so the
// gateway consumes it the way every other tool does: `pm2 jlist` for
// queries and `pm2 start|stop|restart <name>` for commands.
type Supervisor struct {
	bin    string
	logDir string
}

func New(bin, logDir string) *Supervisor {
	if bin == "" {
		bin = "pm2"
	}
	return &Supervisor{bin: bin, logDir: logDir}
}

func (s *Supervisor) List(ctx context.Context) ([]domain.ManagedProcess, error) {
	out, err := exec.CommandContext(ctx, s.bin, "jlist").Output()
	if err != nil {
		return nil, fmt.Errorf("%w: pm2 jlist: %v", domain.ErrSupervisorUnavailable, err)
	}
	procs, err := parseJList(out, s.logDir)
	if err != nil {
		return nil, fmt.Errorf("%w: pm2 jlist: %v", domain.ErrSupervisorUnavailable, err)
	}
	return procs, nil
}

func (s *Supervisor) Start(ctx context.Context, name string) (domain.CommandResult, error) {
	return s.command(ctx, "start", name)
}

func (s *Supervisor) Stop(ctx context.Context, name string) (domain.CommandResult, error) {
	return s.command(ctx, "stop", name)
}

func (s *Supervisor) Restart(ctx context.Context, name string) (domain.CommandResult, error) {
	return s.command(ctx, "restart", name)
}

// command runs one pm2 subcommand. A non-zero exit with output is pm2's
// own verdict on the command and comes back inside the result; only a
// failure to run pm2 at all is an error.
func (s *Supervisor) command(ctx context.Context, action, name string) (domain.CommandResult, error) {
	out, err := exec.CommandContext(ctx, s.bin, action, name).CombinedOutput()
	msg := strings.TrimSpace(string(out))
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return domain.CommandResult{}, fmt.Errorf("%w: pm2 %s %s: %v", domain.ErrSupervisorUnavailable, action, name, err)
		}
		if msg == "" {
			msg = err.Error()
		}
		return domain.CommandResult{OK: false, Message: msg}, nil
	}
	if msg == "" {
		msg = fmt.Sprintf("pm2 %s %s succeeded", action, name)
	}
	return domain.CommandResult{OK: true, Message: msg}, nil
}
