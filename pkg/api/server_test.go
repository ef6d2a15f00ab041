package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ExclusiveAccount/portguard/pkg/classify"
	"github.com/ExclusiveAccount/portguard/pkg/config"
	"github.com/ExclusiveAccount/portguard/pkg/events"
	"github.com/ExclusiveAccount/portguard/pkg/logbuf"
	"github.com/ExclusiveAccount/portguard/pkg/models"
	"github.com/ExclusiveAccount/portguard/pkg/orchestrator"
	"github.com/ExclusiveAccount/portguard/pkg/registry"
	"github.com/ExclusiveAccount/portguard/pkg/remedy"
)

type stubScanner struct {
	ports []int
}

func (s *stubScanner) Scan(ctx context.Context, target string) ([]int, error) {
	return s.ports, nil
}

type stubRemediator struct {
	succeed bool
}

func (r *stubRemediator) Remediate(ctx context.Context, port int, service string, action models.Action, notify func(int, string)) *models.RemediationOutcome {
	return &models.RemediationOutcome{
		Port:    port,
		Service: service,
		Action:  action,
		Success: r.succeed,
		Message: "stub outcome",
	}
}

type stubRunner struct{}

func (stubRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	return "", errors.New("exit status 1")
}

func newTestServer(t *testing.T, succeed bool) (*Server, *orchestrator.Orchestrator) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.DefaultConfig()
	hook := logbuf.New(cfg.LogHistory)
	logger.AddHook(hook)

	orch := orchestrator.New(cfg,
		&stubScanner{ports: []int{21, 22}},
		classify.FromConfig(cfg),
		&stubRemediator{succeed: succeed},
		registry.New(logger),
		events.New(cfg.EventBuffer, logger),
		logger)

	engine := remedy.NewEngineWith(cfg, remedy.PlatformLinux, stubRunner{}, logger)
	t.Cleanup(func() { engine.Close() })

	logger.Info("server under test started")
	return NewServer(cfg, orch, engine, hook, logger), orch
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRootAndHealth(t *testing.T) {
	s, _ := newTestServer(t, true)

	w := doJSON(t, s.Router(), http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Version, decode(t, w)["version"])

	w = doJSON(t, s.Router(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestSystemStatus(t *testing.T) {
	s, _ := newTestServer(t, true)

	w := doJSON(t, s.Router(), http.MethodGet, "/system/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "linux", body["operating_system"])
	assert.Contains(t, body, "admin_privileges")
	assert.Contains(t, body, "firewall_enabled")
}

func TestStartScanAndPollStatus(t *testing.T) {
	s, orch := newTestServer(t, true)

	w := doJSON(t, s.Router(), http.MethodPost, "/scan/start", ScanRequest{Target: "127.0.0.1"})
	require.Equal(t, http.StatusOK, w.Code)

	id, ok := decode(t, w)["operation_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	orch.Wait()

	w = doJSON(t, s.Router(), http.MethodGet, "/scan/status/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, string(models.StatusCompleted), body["status"])
	assert.EqualValues(t, 100, body["progress"])
}

func TestStartScanDefaultsTarget(t *testing.T) {
	s, orch := newTestServer(t, true)

	w := doJSON(t, s.Router(), http.MethodPost, "/scan/start", map[string]interface{}{})
	require.Equal(t, http.StatusOK, w.Code)
	orch.Wait()
}

func TestOperationStatusNotFound(t *testing.T) {
	s, _ := newTestServer(t, true)

	w := doJSON(t, s.Router(), http.MethodGet, "/scan/status/unknown-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s.Router(), http.MethodGet, "/action/status/unknown-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecuteAction(t *testing.T) {
	s, orch := newTestServer(t, true)

	w := doJSON(t, s.Router(), http.MethodPost, "/action/execute", ActionRequest{
		Port:    21,
		Service: "FTP",
		Action:  "close",
	})
	require.Equal(t, http.StatusOK, w.Code)

	id := decode(t, w)["operation_id"].(string)
	orch.Wait()

	w = doJSON(t, s.Router(), http.MethodGet, "/action/status/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, string(models.StatusCompleted), body["status"])
	assert.Equal(t, true, body["success"])
}

func TestExecuteActionValidation(t *testing.T) {
	s, _ := newTestServer(t, true)

	// Unknown action name.
	w := doJSON(t, s.Router(), http.MethodPost, "/action/execute", ActionRequest{Port: 21, Action: "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Missing required fields.
	w = doJSON(t, s.Router(), http.MethodPost, "/action/execute", map[string]interface{}{"service": "FTP"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRollbackEndpoint(t *testing.T) {
	s, orch := newTestServer(t, true)

	// Unknown operation.
	w := doJSON(t, s.Router(), http.MethodPost, "/rollback", RollbackRequest{OperationID: "missing", Port: 21})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Completed operations cannot be rolled back.
	id, err := orch.ExecuteAction(21, "FTP", models.ActionClose, "")
	require.NoError(t, err)
	orch.Wait()

	w = doJSON(t, s.Router(), http.MethodPost, "/rollback", RollbackRequest{OperationID: id, Port: 21})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Can only rollback failed operations")
}

func TestRollbackOfFailedOperation(t *testing.T) {
	s, orch := newTestServer(t, false)

	id, err := orch.ExecuteAction(21, "FTP", models.ActionClose, "")
	require.NoError(t, err)
	orch.Wait()

	w := doJSON(t, s.Router(), http.MethodPost, "/rollback", RollbackRequest{OperationID: id, Port: 21})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["rollback_id"])
	orch.Wait()
}

func TestRestoreEndpoint(t *testing.T) {
	s, orch := newTestServer(t, true)

	w := doJSON(t, s.Router(), http.MethodPost, "/restore", RestoreRequest{Port: 22, Service: "SSH"})
	require.Equal(t, http.StatusOK, w.Code)

	id := decode(t, w)["operation_id"].(string)
	orch.Wait()

	op, err := orch.Registry().Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.ActionRestore, op.Action)
}

func TestListAndDeleteOperations(t *testing.T) {
	s, orch := newTestServer(t, true)

	w := doJSON(t, s.Router(), http.MethodDelete, "/operations/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	id, err := orch.ExecuteAction(23, "Telnet", models.ActionClose, "")
	require.NoError(t, err)
	orch.Wait()

	w = doJSON(t, s.Router(), http.MethodGet, "/operations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ops := decode(t, w)["operations"].(map[string]interface{})
	assert.Contains(t, ops, id)

	w = doJSON(t, s.Router(), http.MethodDelete, "/operations/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s.Router(), http.MethodDelete, "/operations/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, true)

	w := doJSON(t, s.Router(), http.MethodGet, "/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.GreaterOrEqual(t, body["count"].(float64), float64(1))
}
