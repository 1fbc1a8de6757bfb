package tail

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"pm2gate/internal/core/domain"
	"pm2gate/internal/core/logger"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBacklogLines = 100
)

type Options struct {
	// PollInterval bounds how long a new line can sit unnoticed when the
	// OS watch is unavailable or drops an event.
	PollInterval time.Duration

	// BacklogLines is how many trailing lines are replayed once before
	// live streaming starts.
	BacklogLines int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.BacklogLines <= 0 {
		o.BacklogLines = defaultBacklogLines
	}
	return o
}

// Tailer follows one append-only log file and emits its complete lines in
// file order. A missing file is waited for rather than treated as fatal,
// and an externally rotated or truncated file is reopened transparently.
// Exactly one goroutine owns the read cursor; Stop is idempotent and
// releases the file handle and watch synchronously.
type Tailer struct {
	path    string
	channel domain.LogChannel
	opts    Options

	lines    chan domain.LogLine
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	started  atomic.Bool

	// read-loop state, touched only by the run goroutine
	ctx      context.Context
	f        *os.File
	offset   int64
	pending  []byte
	replayed bool
}

func New(path string, channel domain.LogChannel, opts Options) *Tailer {
	return &Tailer{
		path:     path,
		channel:  channel,
		opts:     opts.withDefaults(),
		lines:    make(chan domain.LogLine, 64),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Lines is the tailer's output. It is closed when the tailer stops.
func (t *Tailer) Lines() <-chan domain.LogLine { return t.lines }

// Path returns the watched file path.
func (t *Tailer) Path() string { return t.path }

// Start launches the read loop. Call at most once.
func (t *Tailer) Start(ctx context.Context) {
	t.ctx = ctx
	t.started.Store(true)
	go t.run(ctx)
}

// Stop terminates the tailer and waits for the read loop to release its
// file handle and watch. Safe to call multiple times and from any
// goroutine, including concurrently with a blocked line emission.
func (t *Tailer) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
	if t.started.Load() {
		<-t.finished
	}
}

func (t *Tailer) run(ctx context.Context) {
	defer close(t.finished)
	defer close(t.lines)
	defer func() {
		if t.f != nil {
			t.f.Close()
			t.f = nil
		}
	}()

	// Watch the directory, not the file: rotation replaces the file, and
	// a watch pinned to the old inode would go silent. If the watch cannot
	// be established we rely on polling alone.
	var events <-chan fsnotify.Event
	var werrs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if addErr := watcher.Add(filepath.Dir(t.path)); addErr != nil {
			logger.Debug("tail: watch unavailable, polling only", "path", t.path, "err", addErr)
			watcher.Close()
		} else {
			defer watcher.Close()
			events = watcher.Events
			werrs = watcher.Errors
		}
	} else {
		logger.Debug("tail: fsnotify unavailable, polling only", "err", err)
	}

	// The poll tick stays on even with a working watch; it doubles as the
	// retry schedule for transient read errors.
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		if !t.poll() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-ticker.C:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != filepath.Clean(t.path) {
				continue
			}
		case err, ok := <-werrs:
			if !ok {
				werrs = nil
				continue
			}
			logger.Debug("tail: watch error", "path", t.path, "err", err)
		}
	}
}

// poll advances the tailer by one step: open the file if needed, detect
// rotation, then drain newly appended bytes. Returns false only when the
// tailer is shutting down mid-emission.
func (t *Tailer) poll() bool {
	if t.f == nil && !t.openFile() {
		return true
	}
	t.checkRotation()
	if t.f == nil {
		return true
	}
	return t.consume()
}

func (t *Tailer) openFile() bool {
	f, err := os.Open(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Debug("tail: open failed, will retry", "path", t.path, "err", err)
		}
		return false
	}
	t.f = f
	t.offset = 0
	t.pending = nil
	if !t.replayed {
		t.replayed = true
		t.replayBacklog()
	}
	return true
}

// replayBacklog emits the trailing lines present at open time so a new
// subscriber sees recent history instead of a blank stream. A final
// unterminated line is held back until its terminator arrives.
func (t *Tailer) replayBacklog() {
	fi, err := t.f.Stat()
	if err != nil {
		return
	}
	size := fi.Size()
	lines, err := lastLines(t.f, size, t.opts.BacklogLines)
	if err != nil {
		logger.Debug("tail: backlog read failed", "path", t.path, "err", err)
		return
	}
	if size > 0 {
		b := make([]byte, 1)
		if _, err := t.f.ReadAt(b, size-1); err == nil && b[0] != '\n' && len(lines) > 0 {
			t.pending = []byte(lines[len(lines)-1])
			lines = lines[:len(lines)-1]
		}
	}
	t.offset = size
	for _, line := range lines {
		if !t.emit(line) {
			return
		}
	}
}

// checkRotation compares the path's current identity and size against the
// open handle. A replaced file (new inode) or a shrunken one means the
// supervisor rotated or truncated the log: drop the stale handle and
// reopen from offset zero.
func (t *Tailer) checkRotation() {
	cur, err := os.Stat(t.path)
	if err != nil {
		// Mid-rotation gap; keep draining the old handle until the
		// replacement shows up.
		return
	}
	old, err := t.f.Stat()
	if err == nil && os.SameFile(old, cur) && cur.Size() >= t.offset {
		return
	}
	t.f.Close()
	t.f = nil
	t.offset = 0
	t.pending = nil
	rotationsTotal.Inc()
	logger.Debug("tail: rotation detected", "path", t.path)
	t.openFile()
}

// consume reads everything appended past the cursor and emits complete
// lines, buffering a trailing partial line for the next round.
func (t *Tailer) consume() bool {
	fi, err := t.f.Stat()
	if err != nil {
		logger.Debug("tail: stat failed, will retry", "path", t.path, "err", err)
		return true
	}
	size := fi.Size()
	if size <= t.offset {
		return true
	}
	buf := make([]byte, size-t.offset)
	n, err := t.f.ReadAt(buf, t.offset)
	if n == 0 {
		if err != nil {
			logger.Debug("tail: read failed, will retry", "path", t.path, "err", err)
		}
		return true
	}
	t.offset += int64(n)

	data := append(t.pending, buf[:n]...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(data[:i]), "\r")
		data = data[i+1:]
		if !t.emit(line) {
			return false
		}
	}
	t.pending = append([]byte(nil), data...)
	return true
}

func (t *Tailer) emit(text string) bool {
	line := domain.LogLine{
		Channel:    t.channel,
		Text:       text,
		ObservedAt: time.Now(),
	}
	select {
	case t.lines <- line:
		linesTotal.WithLabelValues(string(t.channel)).Inc()
		return true
	case <-t.done:
		return false
	case <-t.ctx.Done():
		return false
	}
}
