package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shellbox/shellbox/internal/auth"
	"github.com/shellbox/shellbox/internal/sandbox"
	"github.com/shellbox/shellbox/pkg/types"
)

// loopShell emulates the container side of a shell session: echo a result
// line for every command, then acknowledge the sentinel.
type loopShell struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newLoopShell() io.ReadWriteCloser {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	go func() {
		defer outW.Close()
		var last string
		scanner := bufio.NewScanner(inR)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "echo __SBX_") {
				sentinel := strings.TrimSuffix(strings.TrimPrefix(line, "echo "), " $?")
				fmt.Fprintf(outW, "ran: %s\n%s 0\n", last, sentinel)
				continue
			}
			last = line
		}
	}()

	return &loopShell{r: outR, w: inW}
}

func (l *loopShell) Read(b []byte) (int, error)  { return l.r.Read(b) }
func (l *loopShell) Write(b []byte) (int, error) { return l.w.Write(b) }
func (l *loopShell) Close() error {
	l.r.Close()
	return l.w.Close()
}

// stubRuntime satisfies sandbox.Runtime without a container engine.
type stubRuntime struct {
	mu     sync.Mutex
	nextID int
}

func (s *stubRuntime) EnsureImage(ctx context.Context, image string) error { return nil }

func (s *stubRuntime) CreateContainer(ctx context.Context, name, image string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return fmt.Sprintf("ctr-%d", s.nextID), nil
}

func (s *stubRuntime) StartContainer(ctx context.Context, containerID string) error { return nil }

func (s *stubRuntime) AttachShell(containerID, shell string) (io.ReadWriteCloser, error) {
	return newLoopShell(), nil
}

func (s *stubRuntime) ExecCommand(ctx context.Context, containerID string, command []string) (string, string, int, error) {
	return "standalone: " + command[len(command)-1], "", 0, nil
}

func (s *stubRuntime) StopContainer(ctx context.Context, containerID string) error   { return nil }
func (s *stubRuntime) RemoveContainer(ctx context.Context, containerID string) error { return nil }

func newTestServer(t *testing.T, maxSandboxes int, apiKey string) *Server {
	t.Helper()
	return newTestServerWithData(t, maxSandboxes, apiKey, "")
}

func newTestServerWithData(t *testing.T, maxSandboxes int, apiKey, dataDir string) *Server {
	t.Helper()
	mgr := sandbox.NewManager(&stubRuntime{}, sandbox.Options{
		MaxSandboxes: maxSandboxes,
		DefaultImage: "docker.io/library/ubuntu:22.04",
		ExecTimeout:  5 * time.Second,
		DataDir:      dataDir,
	})
	return NewServer(mgr, sandbox.NewPTYManager("podman", ""), apiKey, auth.NewJWTIssuer("test-secret"))
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func createRunning(t *testing.T, s *Server) types.Sandbox {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/sandboxes", types.SandboxConfig{Start: true})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	var sb types.Sandbox
	decode(t, rec, &sb)
	return sb
}

func TestCreateAndStartSandbox(t *testing.T) {
	s := newTestServer(t, 2, "")

	sb := createRunning(t, s)
	if sb.ID == "" {
		t.Fatal("no sandbox id in response")
	}
	if sb.State != types.StateRunning {
		t.Errorf("state = %q, want running", sb.State)
	}
	if sb.Token == "" {
		t.Error("no sandbox token issued")
	}
}

func TestCreateWithoutStart(t *testing.T) {
	s := newTestServer(t, 2, "")

	rec := doJSON(t, s, http.MethodPost, "/sandboxes", types.SandboxConfig{})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	var sb types.Sandbox
	decode(t, rec, &sb)
	if sb.State != types.StateCreated {
		t.Errorf("state = %q, want created", sb.State)
	}
}

func TestExecEndpoint(t *testing.T) {
	s := newTestServer(t, 2, "")
	sb := createRunning(t, s)

	rec := doJSON(t, s, http.MethodPost, "/sandboxes/"+sb.ID+"/exec", types.ExecRequest{Command: "ls"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var res types.ExecResult
	decode(t, rec, &res)
	if res.Stdout != "ran: ls" || res.ExitCode != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestExecMissingCommand(t *testing.T) {
	s := newTestServer(t, 2, "")
	sb := createRunning(t, s)

	rec := doJSON(t, s, http.MethodPost, "/sandboxes/"+sb.ID+"/exec", types.ExecRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestExecConflictWhenNotRunning(t *testing.T) {
	s := newTestServer(t, 2, "")

	rec := doJSON(t, s, http.MethodPost, "/sandboxes", types.SandboxConfig{})
	var sb types.Sandbox
	decode(t, rec, &sb)

	rec = doJSON(t, s, http.MethodPost, "/sandboxes/"+sb.ID+"/exec", types.ExecRequest{Command: "ls"})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestSandboxNotFound(t *testing.T) {
	s := newTestServer(t, 2, "")

	rec := doJSON(t, s, http.MethodGet, "/sandboxes/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAdmissionExhaustedReturns503(t *testing.T) {
	s := newTestServer(t, 1, "")
	createRunning(t, s)

	rec := doJSON(t, s, http.MethodPost, "/sandboxes", types.SandboxConfig{Start: true})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503; body %s", rec.Code, rec.Body.String())
	}

	// The sandbox itself was created and can be started later.
	var body struct {
		Sandbox string `json:"sandbox"`
	}
	decode(t, rec, &body)
	if body.Sandbox == "" {
		t.Fatal("503 body does not name the created sandbox")
	}

	rec = doJSON(t, s, http.MethodGet, "/sandboxes/"+body.Sandbox, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get named sandbox: %d", rec.Code)
	}
	var sb types.Sandbox
	decode(t, rec, &sb)
	if sb.State != types.StateCreated {
		t.Errorf("named sandbox state = %q, want created", sb.State)
	}
}

func TestStopAndRemove(t *testing.T) {
	s := newTestServer(t, 2, "")
	sb := createRunning(t, s)

	rec := doJSON(t, s, http.MethodPost, "/sandboxes/"+sb.ID+"/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d body %s", rec.Code, rec.Body.String())
	}
	var stopped types.Sandbox
	decode(t, rec, &stopped)
	if stopped.State != types.StateStopped {
		t.Errorf("state = %q", stopped.State)
	}

	rec = doJSON(t, s, http.MethodDelete, "/sandboxes/"+sb.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/sandboxes/"+sb.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
}

func TestTrajectoryEndpoint(t *testing.T) {
	s := newTestServer(t, 2, "")
	sb := createRunning(t, s)

	for _, cmd := range []string{"pwd", "ls -la"} {
		rec := doJSON(t, s, http.MethodPost, "/sandboxes/"+sb.ID+"/exec", types.ExecRequest{Command: cmd})
		if rec.Code != http.StatusOK {
			t.Fatalf("exec %q: %d", cmd, rec.Code)
		}
	}

	rec := doJSON(t, s, http.MethodGet, "/sandboxes/"+sb.ID+"/trajectory", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var traj types.TrajectoryResponse
	decode(t, rec, &traj)
	if traj.SandboxID != sb.ID || len(traj.Records) != 2 {
		t.Fatalf("trajectory = %+v", traj)
	}
	if traj.Records[0].Command != "pwd" || traj.Records[1].Command != "ls -la" {
		t.Errorf("records out of order: %+v", traj.Records)
	}
}

func TestEventsEndpoint(t *testing.T) {
	s := newTestServerWithData(t, 2, "", t.TempDir())
	sb := createRunning(t, s)

	rec := doJSON(t, s, http.MethodPost, "/sandboxes/"+sb.ID+"/exec", types.ExecRequest{Command: "pwd"})
	if rec.Code != http.StatusOK {
		t.Fatalf("exec: %d body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, s, http.MethodPost, "/sandboxes/"+sb.ID+"/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/sandboxes/"+sb.ID+"/events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		SandboxID string                   `json:"sandbox_id"`
		Lifecycle []sandbox.LifecycleEntry `json:"lifecycle"`
		Summary   struct {
			Commands int `json:"commands"`
		} `json:"summary"`
	}
	decode(t, rec, &body)
	if body.SandboxID != sb.ID {
		t.Errorf("sandbox_id = %q, want %q", body.SandboxID, sb.ID)
	}
	if len(body.Lifecycle) == 0 {
		t.Error("no lifecycle entries recorded")
	}
	sawStop := false
	for _, e := range body.Lifecycle {
		if e.ToState == string(types.StateStopped) {
			sawStop = true
		}
	}
	if !sawStop {
		t.Errorf("no stopped transition in lifecycle: %+v", body.Lifecycle)
	}
	if body.Summary.Commands != 1 {
		t.Errorf("summary commands = %d, want 1", body.Summary.Commands)
	}
}

func TestEventsDisabledWithoutDataDir(t *testing.T) {
	s := newTestServer(t, 2, "")
	sb := createRunning(t, s)

	rec := doJSON(t, s, http.MethodGet, "/sandboxes/"+sb.ID+"/events", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListSandboxes(t *testing.T) {
	s := newTestServer(t, 3, "")
	createRunning(t, s)
	createRunning(t, s)

	rec := doJSON(t, s, http.MethodGet, "/sandboxes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Sandboxes []types.Sandbox `json:"sandboxes"`
	}
	decode(t, rec, &body)
	if len(body.Sandboxes) != 2 {
		t.Errorf("listed %d sandboxes", len(body.Sandboxes))
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, 2, "with-key")

	// Health bypasses auth.
	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	s := newTestServer(t, 2, "with-key")

	rec := doJSON(t, s, http.MethodGet, "/sandboxes", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/sandboxes", nil)
	req.Header.Set("X-API-Key", "with-key")
	rec2 := httptest.NewRecorder()
	s.echo.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Errorf("status with key = %d, want 200", rec2.Code)
	}
}

func TestSandboxTokenScope(t *testing.T) {
	s := newTestServer(t, 2, "with-key")

	req := httptest.NewRequest(http.MethodPost, "/sandboxes", strings.NewReader(`{"start":true}`))
	req.Header.Set(echoHeaderContentType, "application/json")
	req.Header.Set("X-API-Key", "with-key")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d body %s", rec.Code, rec.Body.String())
	}
	var sb types.Sandbox
	decode(t, rec, &sb)
	if sb.Token == "" {
		t.Fatal("no token issued")
	}

	// The sandbox token works on its own sandbox...
	req = httptest.NewRequest(http.MethodGet, "/sandboxes/"+sb.ID, nil)
	req.Header.Set("Authorization", "Bearer "+sb.Token)
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("token on own sandbox: %d", rec.Code)
	}

	// ...but not on the collection.
	req = httptest.NewRequest(http.MethodGet, "/sandboxes", nil)
	req.Header.Set("Authorization", "Bearer "+sb.Token)
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("token on collection: %d, want 401", rec.Code)
	}
}
