package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pm2gate/internal/core/domain"
	"pm2gate/internal/core/services"
	"pm2gate/internal/core/stream"
	"pm2gate/internal/core/tail"
)

type fakeSupervisor struct {
	mu       sync.Mutex
	procs    []domain.ManagedProcess
	listErr  error
	cmdRes   domain.CommandResult
	cmdErr   error
	commands []string
}

func (f *fakeSupervisor) List(ctx context.Context) ([]domain.ManagedProcess, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.procs, nil
}

func (f *fakeSupervisor) call(action, name string) (domain.CommandResult, error) {
	f.mu.Lock()
	f.commands = append(f.commands, action+" "+name)
	f.mu.Unlock()
	return f.cmdRes, f.cmdErr
}

func (f *fakeSupervisor) Start(ctx context.Context, name string) (domain.CommandResult, error) {
	return f.call("start", name)
}

func (f *fakeSupervisor) Stop(ctx context.Context, name string) (domain.CommandResult, error) {
	return f.call("stop", name)
}

func (f *fakeSupervisor) Restart(ctx context.Context, name string) (domain.CommandResult, error) {
	return f.call("restart", name)
}

func (f *fakeSupervisor) issued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func newTestServer(t *testing.T, sup *fakeSupervisor) *httptest.Server {
	t.Helper()
	procs := services.NewProcessService(sup, nil, nil)
	registry := stream.NewRegistry()
	gateway := NewGateway(procs, registry, nil, tail.Options{PollInterval: 10 * time.Millisecond})
	srv := NewServer(procs, services.NewLogService(), services.NewHealthService(sup, nil, "test"), gateway)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(registry.CloseAll)
	return ts
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestListEndpoint(t *testing.T) {
	sup := &fakeSupervisor{procs: []domain.ManagedProcess{
		{Name: "web", Status: domain.StatusOnline, PID: 100},
		{Name: "worker", Status: domain.StatusStopped},
	}}
	ts := newTestServer(t, sup)

	resp, err := http.Get(ts.URL + "/pm2")
	if err != nil {
		t.Fatalf("GET /pm2: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "success" {
		t.Errorf("status field = %v, want success", body["status"])
	}
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
	procs, ok := body["processes"].([]interface{})
	if !ok || len(procs) != 2 {
		t.Fatalf("processes = %v, want 2 entries", body["processes"])
	}
	first := procs[0].(map[string]interface{})
	if first["name"] != "web" {
		t.Errorf("processes[0].name = %v, want web", first["name"])
	}
}

func TestGetEndpointUnknownProcess(t *testing.T) {
	ts := newTestServer(t, &fakeSupervisor{procs: []domain.ManagedProcess{{Name: "web"}}})

	resp, err := http.Get(ts.URL + "/pm2/ghost")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["message"] != "Process ghost not found" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestRestartUnknownProcessIssuesNoCommand(t *testing.T) {
	sup := &fakeSupervisor{procs: []domain.ManagedProcess{{Name: "web", Status: domain.StatusOnline}}}
	ts := newTestServer(t, sup)

	resp, err := http.Post(ts.URL+"/pm2/ghost/restart", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if cmds := sup.issued(); len(cmds) != 0 {
		t.Errorf("supervisor received %v, want no commands", cmds)
	}
}

func TestStopEndpoint(t *testing.T) {
	sup := &fakeSupervisor{
		procs:  []domain.ManagedProcess{{Name: "web", Status: domain.StatusOnline}},
		cmdRes: domain.CommandResult{OK: true, Message: "web stopped"},
	}
	ts := newTestServer(t, sup)

	resp, err := http.Post(ts.URL+"/pm2/web/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "success" || body["message"] != "web stopped" {
		t.Errorf("body = %v", body)
	}
	if cmds := sup.issued(); len(cmds) != 1 || cmds[0] != "stop web" {
		t.Errorf("commands = %v, want [stop web]", cmds)
	}
}

func TestCommandFailureSurfacesSupervisorMessage(t *testing.T) {
	sup := &fakeSupervisor{
		procs:  []domain.ManagedProcess{{Name: "web", Status: domain.StatusOnline}},
		cmdRes: domain.CommandResult{OK: false, Message: "script missing"},
	}
	ts := newTestServer(t, sup)

	resp, err := http.Post(ts.URL+"/pm2/web/restart", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["message"] != "script missing" {
		t.Errorf("message = %v, want script missing", body["message"])
	}
}

func TestListSupervisorDown(t *testing.T) {
	ts := newTestServer(t, &fakeSupervisor{listErr: errors.New("daemon gone")})

	resp, err := http.Get(ts.URL + "/pm2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "error" {
		t.Errorf("status field = %v, want error", body["status"])
	}
}

func TestLogsEndpoint(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "web-out.log")
	errPath := filepath.Join(dir, "web-error.log")
	os.WriteFile(out, []byte("o1\no2\n"), 0o644)
	os.WriteFile(errPath, []byte("e1\n"), 0o644)

	sup := &fakeSupervisor{procs: []domain.ManagedProcess{{
		Name:          "web",
		Status:        domain.StatusOnline,
		StdoutLogPath: out,
		StderrLogPath: errPath,
	}}}
	ts := newTestServer(t, sup)

	resp, err := http.Get(ts.URL + "/pm2/web/logs")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["totalLines"] != float64(3) || body["outLogLines"] != float64(2) || body["errorLogLines"] != float64(1) {
		t.Errorf("counts = %v/%v/%v, want 3/2/1", body["totalLines"], body["outLogLines"], body["errorLogLines"])
	}
	logs := body["logs"].([]interface{})
	first := logs[0].(map[string]interface{})
	if first["channel"] != "stderr" || first["text"] != "e1" {
		t.Errorf("logs[0] = %v, want stderr e1", first)
	}
	if ts, present := first["timestamp"]; !present || ts != nil {
		t.Errorf("logs[0].timestamp = %v (present=%v), want explicit null", ts, present)
	}
}

func TestActionsWithoutStore(t *testing.T) {
	ts := newTestServer(t, &fakeSupervisor{procs: []domain.ManagedProcess{{Name: "web"}}})

	resp, err := http.Get(ts.URL + "/pm2/web/actions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, &fakeSupervisor{})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/pm2", nil)
	req.Header.Set("Origin", "http://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}

func TestLivenessEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeSupervisor{})

	resp, err := http.Get(ts.URL + "/health/live")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg map[string]interface{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return msg
}

func TestStreamConnectedBeforeFirstLog(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "web-out.log")
	os.WriteFile(out, []byte("history\n"), 0o644)

	sup := &fakeSupervisor{procs: []domain.ManagedProcess{{
		Name:          "web",
		Status:        domain.StatusOnline,
		StdoutLogPath: out,
		StderrLogPath: filepath.Join(dir, "web-error.log"),
	}}}
	ts := newTestServer(t, sup)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/pm2/web/logs/stream"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readFrame(t, conn)
	if first["type"] != "connected" || first["process"] != "web" {
		t.Fatalf("first frame = %v, want connected web", first)
	}
	second := readFrame(t, conn)
	if second["type"] != "log" || second["text"] != "history" || second["channel"] != "stdout" {
		t.Errorf("second frame = %v, want log history", second)
	}
}

func TestStreamDeliversAppendedLines(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "web-out.log")
	os.WriteFile(out, []byte(""), 0o644)

	sup := &fakeSupervisor{procs: []domain.ManagedProcess{{
		Name:          "web",
		Status:        domain.StatusOnline,
		StdoutLogPath: out,
		StderrLogPath: filepath.Join(dir, "web-error.log"),
	}}}
	ts := newTestServer(t, sup)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/pm2/web/logs/stream"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readFrame(t, conn)

	f, err := os.OpenFile(out, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	f.WriteString("live line\n")
	f.Close()

	frame := readFrame(t, conn)
	if frame["type"] != "log" || frame["text"] != "live line" {
		t.Errorf("frame = %v, want log live line", frame)
	}
}

func TestStreamPingPong(t *testing.T) {
	dir := t.TempDir()
	sup := &fakeSupervisor{procs: []domain.ManagedProcess{{
		Name:          "web",
		Status:        domain.StatusOnline,
		StdoutLogPath: filepath.Join(dir, "web-out.log"),
		StderrLogPath: filepath.Join(dir, "web-error.log"),
	}}}
	ts := newTestServer(t, sup)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/pm2/web/logs/stream"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readFrame(t, conn)

	// Garbage frames are tolerated; a ping still earns its pong.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	frame := readFrame(t, conn)
	if frame["type"] != "pong" {
		t.Errorf("frame = %v, want pong", frame)
	}
}

func TestStreamUnknownProcessRejected(t *testing.T) {
	ts := newTestServer(t, &fakeSupervisor{procs: []domain.ManagedProcess{{Name: "web"}}})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/pm2/ghost/logs/stream"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frame := readFrame(t, conn)
	if frame["type"] != "error" {
		t.Fatalf("frame = %v, want error", frame)
	}
	if msg, _ := frame["message"].(string); !strings.Contains(msg, "ghost") {
		t.Errorf("error message = %q, want it to name the process", msg)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("read after error frame = %v, want close error", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
}
