package pm2

import (
	"testing"
	"time"

	"pm2gate/internal/core/domain"
)

const sampleJList = `[
  {
    "pid": 12345,
    "name": "web",
    "pm2_env": {
      "status": "online",
      "pm_uptime": 1756400000000,
      "restart_time": 3,
      "exec_mode": "cluster_mode",
      "pm_exec_path": "/srv/web/index.js",
      "pm_out_log_path": "/home/app/.pm2/logs/web-out.log",
      "pm_err_log_path": "/home/app/.pm2/logs/web-error.log"
    },
    "monit": { "memory": 52428800, "cpu": 1.5 }
  },
  {
    "pid": 0,
    "name": "worker",
    "pm2_env": {
      "status": "stopped",
      "pm_uptime": 0,
      "restart_time": 0,
      "exec_mode": "fork_mode"
    },
    "monit": { "memory": 0, "cpu": 0 }
  }
]`

func TestParseJList(t *testing.T) {
	procs, err := parseJList([]byte(sampleJList), "/var/log/pm2")
	if err != nil {
		t.Fatalf("parseJList: %v", err)
	}
	if len(procs) != 2 {
		t.Fatalf("got %d processes, want 2", len(procs))
	}

	web := procs[0]
	if web.Name != "web" {
		t.Errorf("Name = %q, want web", web.Name)
	}
	if web.Status != domain.StatusOnline {
		t.Errorf("Status = %q, want online", web.Status)
	}
	if web.PID != 12345 {
		t.Errorf("PID = %d, want 12345", web.PID)
	}
	if web.RestartCount != 3 {
		t.Errorf("RestartCount = %d, want 3", web.RestartCount)
	}
	if web.ExecutionMode != domain.ModeCluster {
		t.Errorf("ExecutionMode = %q, want cluster", web.ExecutionMode)
	}
	if web.MemoryBytes != 52428800 {
		t.Errorf("MemoryBytes = %d, want 52428800", web.MemoryBytes)
	}
	if web.CPUPercent != 1.5 {
		t.Errorf("CPUPercent = %v, want 1.5", web.CPUPercent)
	}
	if want := time.UnixMilli(1756400000000); !web.UptimeStart.Equal(want) {
		t.Errorf("UptimeStart = %v, want %v", web.UptimeStart, want)
	}
	if web.StdoutLogPath != "/home/app/.pm2/logs/web-out.log" {
		t.Errorf("StdoutLogPath = %q", web.StdoutLogPath)
	}
	if web.StderrLogPath != "/home/app/.pm2/logs/web-error.log" {
		t.Errorf("StderrLogPath = %q", web.StderrLogPath)
	}

	worker := procs[1]
	if worker.Status != domain.StatusStopped {
		t.Errorf("worker Status = %q, want stopped", worker.Status)
	}
	if worker.ExecutionMode != domain.ModeFork {
		t.Errorf("worker ExecutionMode = %q, want fork", worker.ExecutionMode)
	}
	if !worker.UptimeStart.IsZero() {
		t.Errorf("worker UptimeStart = %v, want zero", worker.UptimeStart)
	}
	// Missing log paths fall back to the conventional names under the
	// configured log dir.
	if worker.StdoutLogPath != "/var/log/pm2/worker-out.log" {
		t.Errorf("worker StdoutLogPath = %q", worker.StdoutLogPath)
	}
	if worker.StderrLogPath != "/var/log/pm2/worker-error.log" {
		t.Errorf("worker StderrLogPath = %q", worker.StderrLogPath)
	}
}

func TestParseJListEmpty(t *testing.T) {
	procs, err := parseJList([]byte("[]"), "/var/log/pm2")
	if err != nil {
		t.Fatalf("parseJList: %v", err)
	}
	if len(procs) != 0 {
		t.Errorf("got %d processes, want 0", len(procs))
	}
}

func TestParseJListInvalid(t *testing.T) {
	if _, err := parseJList([]byte("pm2: command not found"), ""); err == nil {
		t.Error("parseJList accepted non-JSON output")
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want domain.ProcessStatus
	}{
		{"online", domain.StatusOnline},
		{"launching", domain.StatusOnline},
		{"stopped", domain.StatusStopped},
		{"stopping", domain.StatusStopped},
		{"errored", domain.StatusErrored},
		{"one-launch-status", domain.StatusUnknown},
		{"", domain.StatusUnknown},
	}
	for _, tt := range tests {
		if got := parseStatus(tt.in); got != tt.want {
			t.Errorf("parseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseExecMode(t *testing.T) {
	tests := []struct {
		in   string
		want domain.ExecMode
	}{
		{"cluster_mode", domain.ModeCluster},
		{"cluster", domain.ModeCluster},
		{"fork_mode", domain.ModeFork},
		{"", domain.ModeFork},
	}
	for _, tt := range tests {
		if got := parseExecMode(tt.in); got != tt.want {
			t.Errorf("parseExecMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
