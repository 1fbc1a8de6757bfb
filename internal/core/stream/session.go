package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"pm2gate/internal/core/domain"
	"pm2gate/internal/core/logger"
	"pm2gate/internal/core/tail"
)

// Session is one client's subscription to one process's live logs. It
// exclusively owns its tailers: two sessions watching the same file hold
// independent cursors, so a slow client never stalls another. Close is
// one-shot and releases every tailer before the sink.
type Session struct {
	ID      string
	Process string
	Filter  domain.ChannelFilter

	sink    Sink
	tailers []*tail.Tailer
	cancel  context.CancelFunc
	once    sync.Once
	relays  sync.WaitGroup
}

// Open validates the target, sends the connected acknowledgment, and then
// starts one tailer per subscribed channel. The ack is written before any
// tailer runs, so a client always sees "connected" strictly before the
// first log line.
func Open(ctx context.Context, proc *domain.ManagedProcess, filter domain.ChannelFilter, sink Sink, opts tail.Options) (*Session, error) {
	if proc == nil || proc.Name == "" {
		return nil, errors.New("stream: process name required")
	}

	s := &Session{
		ID:      uuid.NewString(),
		Process: proc.Name,
		Filter:  filter,
		sink:    sink,
	}

	hasStdout := filter.Stdout() && proc.StdoutLogPath != ""
	if hasStdout {
		s.tailers = append(s.tailers, tail.New(proc.StdoutLogPath, domain.ChannelStdout, opts))
	}
	if filter.Stderr() && proc.StderrLogPath != "" && !(hasStdout && proc.StderrLogPath == proc.StdoutLogPath) {
		// Identical paths (supervisors that merge channels into one file)
		// get a single tailer rather than two cursors on the same bytes.
		s.tailers = append(s.tailers, tail.New(proc.StderrLogPath, domain.ChannelStderr, opts))
	}

	if err := sink.Send(Message{Type: "connected", Process: proc.Name}); err != nil {
		return nil, err
	}

	tctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	for _, t := range s.tailers {
		t.Start(tctx)
		s.relays.Add(1)
		go s.relay(t)
	}

	sessionsActive.Inc()
	logger.Debug("stream: session opened", "session", s.ID, "process", s.Process, "filter", string(filter))
	return s, nil
}

// relay forwards one tailer's lines to the sink, preserving that tailer's
// emission order. Interleaving between the stdout and stderr relays is
// deliberately unspecified.
func (s *Session) relay(t *tail.Tailer) {
	defer s.relays.Done()
	for line := range t.Lines() {
		msg := Message{
			Type:       "log",
			Process:    s.Process,
			Channel:    line.Channel,
			Text:       line.Text,
			ObservedAt: line.ObservedAt,
		}
		if err := s.sink.Send(msg); err != nil {
			if !errors.Is(err, ErrSinkClosed) {
				logger.Debug("stream: relay send failed", "session", s.ID, "err", err)
			}
			return
		}
	}
}

// Close stops every owned tailer exactly once, waits for their relays to
// drain, then releases the sink. Safe to invoke from both the disconnect
// path and the relay-failure path concurrently.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		for _, t := range s.tailers {
			t.Stop()
		}
		s.relays.Wait()
		if err := s.sink.Close(); err != nil {
			logger.Debug("stream: sink close", "session", s.ID, "err", err)
		}
		sessionsActive.Dec()
		logger.Debug("stream: session closed", "session", s.ID, "process", s.Process)
	})
}
