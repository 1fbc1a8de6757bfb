package domain

import "time"

type LogChannel string

const (
	ChannelStdout LogChannel = "stdout"
	ChannelStderr LogChannel = "stderr"
)

// LogLine is one newline-stripped line read from a process log file.
// ObservedAt is set at emission time; the raw files carry no reliable
// timestamp of their own.
type LogLine struct {
	Channel    LogChannel `json:"channel"`
	Text       string     `json:"text"`
	ObservedAt time.Time  `json:"observedAt"`
}

// ChannelFilter selects which log channels a stream subscribes to.
type ChannelFilter string

const (
	FilterBoth   ChannelFilter = "both"
	FilterStdout ChannelFilter = "stdout"
	FilterStderr ChannelFilter = "stderr"
)

// ParseChannelFilter maps a client-supplied filter string to a
// ChannelFilter, defaulting to FilterBoth for empty or unknown values.
func ParseChannelFilter(s string) ChannelFilter {
	switch s {
	case "stdout", "stdoutOnly", "out":
		return FilterStdout
	case "stderr", "stderrOnly", "err", "error":
		return FilterStderr
	default:
		return FilterBoth
	}
}

// Stdout reports whether the filter includes the stdout channel.
func (f ChannelFilter) Stdout() bool { return f == FilterBoth || f == FilterStdout }

// Stderr reports whether the filter includes the stderr channel.
func (f ChannelFilter) Stderr() bool { return f == FilterBoth || f == FilterStderr }
