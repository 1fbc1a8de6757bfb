package domain

import "time"

type ProcessStatus string

const (
	StatusOnline  ProcessStatus = "online"
	StatusStopped ProcessStatus = "stopped"
	StatusErrored ProcessStatus = "errored"
	StatusUnknown ProcessStatus = "unknown"
)

type ExecMode string

const (
	ModeFork    ExecMode = "fork"
	ModeCluster ExecMode = "cluster"
)

// ManagedProcess is a snapshot of one supervisor-managed process. It is
// sourced fresh from the supervisor on every query and never cached.
type ManagedProcess struct {
	Name          string        `json:"name"`
	Status        ProcessStatus `json:"status"`
	PID           int           `json:"pid"`
	UptimeStart   time.Time     `json:"uptimeStart"`
	MemoryBytes   int64         `json:"memoryBytes"`
	CPUPercent    float64       `json:"cpuPercent"`
	RestartCount  int           `json:"restartCount"`
	ExecutionMode ExecMode      `json:"executionMode"`
	ScriptPath    string        `json:"scriptPath"`
	StdoutLogPath string        `json:"stdoutLogPath"`
	StderrLogPath string        `json:"stderrLogPath"`
}

// CommandResult is the outcome of one supervisor command. OK reflects the
// supervisor's own verdict; Message carries its textual output verbatim.
type CommandResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// ActionRecord is one entry in the control-action audit trail.
type ActionRecord struct {
	Process string    `json:"process"`
	Action  string    `json:"action"`
	OK      bool      `json:"ok"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}
