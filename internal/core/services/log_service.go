package services

import (
	"os"
	"time"

	"pm2gate/internal/core/domain"
	"pm2gate/internal/core/tail"
)

const combinedLogCap = 1000

// CombinedEntry is one line of the combined-log response. Timestamp is
// always JSON null: the raw files carry no reliable per-line timestamp.
type CombinedEntry struct {
	Channel   domain.LogChannel `json:"channel"`
	Text      string            `json:"text"`
	Timestamp *time.Time        `json:"timestamp"`
}

type CombinedLogs struct {
	TotalLines    int             `json:"totalLines"`
	OutLogLines   int             `json:"outLogLines"`
	ErrorLogLines int             `json:"errorLogLines"`
	Logs          []CombinedEntry `json:"logs"`
}

// LogService retrieves a process's recent combined stdout+stderr history
// from its log files on disk.
type LogService struct {
	cap int
}

func NewLogService() *LogService {
	return &LogService{cap: combinedLogCap}
}

// Combined reads the trailing lines of both channels and returns them
// most-recent-first, capped. Ordering is a literal reverse-concatenate of
// the two independently ordered files (stderr entries surface first): the
// raw lines carry no timestamps to merge by, so no chronological
// interleave across channels is attempted or implied.
func (s *LogService) Combined(proc *domain.ManagedProcess) (*CombinedLogs, error) {
	outLines, err := readAll(proc.StdoutLogPath, s.cap)
	if err != nil {
		return nil, err
	}
	errLines, err := readAll(proc.StderrLogPath, s.cap)
	if err != nil {
		return nil, err
	}

	entries := make([]CombinedEntry, 0, len(outLines)+len(errLines))
	for _, line := range outLines {
		entries = append(entries, CombinedEntry{Channel: domain.ChannelStdout, Text: line})
	}
	for _, line := range errLines {
		entries = append(entries, CombinedEntry{Channel: domain.ChannelStderr, Text: line})
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if len(entries) > s.cap {
		entries = entries[:s.cap]
	}

	return &CombinedLogs{
		TotalLines:    len(outLines) + len(errLines),
		OutLogLines:   len(outLines),
		ErrorLogLines: len(errLines),
		Logs:          entries,
	}, nil
}

// readAll degrades a missing or unreadable file to zero lines; the file
// may simply not have been produced yet.
func readAll(path string, max int) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	lines, err := tail.ReadLastLines(path, max)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return nil, nil
		}
		return nil, err
	}
	return lines, nil
}
