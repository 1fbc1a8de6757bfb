package pm2

import (
	"encoding/json"
	"path/filepath"
	"time"

	"pm2gate/internal/core/domain"
)

// jlistEntry mirrors the subset of `pm2 jlist` output the gateway needs.
type jlistEntry struct {
	Name   string `json:"name"`
	PID    int    `json:"pid"`
	PM2Env struct {
		Status       string `json:"status"`
		PMUptime     int64  `json:"pm_uptime"`
		RestartTime  int    `json:"restart_time"`
		ExecMode     string `json:"exec_mode"`
		PMExecPath   string `json:"pm_exec_path"`
		PMOutLogPath string `json:"pm_out_log_path"`
		PMErrLogPath string `json:"pm_err_log_path"`
	} `json:"pm2_env"`
	Monit struct {
		Memory int64   `json:"memory"`
		CPU    float64 `json:"cpu"`
	} `json:"monit"`
}

func parseJList(data []byte, logDir string) ([]domain.ManagedProcess, error) {
	var entries []jlistEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	procs := make([]domain.ManagedProcess, 0, len(entries))
	for _, e := range entries {
		p := domain.ManagedProcess{
			Name:          e.Name,
			Status:        parseStatus(e.PM2Env.Status),
			PID:           e.PID,
			MemoryBytes:   e.Monit.Memory,
			CPUPercent:    e.Monit.CPU,
			RestartCount:  e.PM2Env.RestartTime,
			ExecutionMode: parseExecMode(e.PM2Env.ExecMode),
			ScriptPath:    e.PM2Env.PMExecPath,
			StdoutLogPath: e.PM2Env.PMOutLogPath,
			StderrLogPath: e.PM2Env.PMErrLogPath,
		}
		if e.PM2Env.PMUptime > 0 {
			p.UptimeStart = time.UnixMilli(e.PM2Env.PMUptime)
		}
		// Older pm2 versions omit log paths for stopped processes; fall
		// back to pm2's path convention under the configured log dir.
		if p.StdoutLogPath == "" {
			p.StdoutLogPath = filepath.Join(logDir, e.Name+"-out.log")
		}
		if p.StderrLogPath == "" {
			p.StderrLogPath = filepath.Join(logDir, e.Name+"-error.log")
		}
		procs = append(procs, p)
	}
	return procs, nil
}

func parseStatus(s string) domain.ProcessStatus {
	switch s {
	case "online", "launching":
		return domain.StatusOnline
	case "stopped", "stopping":
		return domain.StatusStopped
	case "errored":
		return domain.StatusErrored
	default:
		return domain.StatusUnknown
	}
}

func parseExecMode(s string) domain.ExecMode {
	if s == "cluster_mode" || s == "cluster" {
		return domain.ModeCluster
	}
	return domain.ModeFork
}
