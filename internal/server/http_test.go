package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nkrishang/mad-protocol/internal/ingestion"
	"github.com/nkrishang/mad-protocol/internal/observability"
	"github.com/nkrishang/mad-protocol/internal/server"
)

func newTestServer(t *testing.T) (*server.Server, chan ingestion.RawEvent, *observability.HealthChecker) {
	t.Helper()
	eventChan := make(chan ingestion.RawEvent, 16)
	health := observability.NewHealthChecker()
	return server.New(nil, eventChan, health, nil), eventChan, health
}

func TestInjectOp_AcceptsValidOperation(t *testing.T) {
	srv, eventChan, _ := newTestServer(t)

	body := `{
		"event_type": "MintRequested",
		"payload": {
			"op_id": "550e8400-e29b-41d4-a716-446655440000",
			"owner": "660e8400-e29b-41d4-a716-446655440001",
			"collateral_amount": 10000000000,
			"borrow_amount": 1000000000,
			"op_sequence": 0,
			"timestamp_us": 1700000000000000
		}
	}`

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/ops", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202 (body: %s)", rec.Code, rec.Body.String())
	}

	select {
	case raw := <-eventChan:
		if raw.Subject != "admin.MintRequested" {
			t.Errorf("subject: got %q", raw.Subject)
		}
	default:
		t.Fatal("no event enqueued")
	}
}

func TestInjectOp_RejectsMalformedPayload(t *testing.T) {
	srv, eventChan, _ := newTestServer(t)

	body := `{"event_type": "MintRequested", "payload": {"op_id": "not-a-uuid"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/ops", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
	if len(eventChan) != 0 {
		t.Error("rejected operation was enqueued")
	}
}

func TestInjectOp_RejectsUnknownEventType(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := `{"event_type": "SomethingElse", "payload": {}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/ops", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, health := newTestServer(t)
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz: got %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before ready: got %d, want 503", rec.Code)
	}

	health.SetReady(true)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/readyz after ready: got %d, want 200", rec.Code)
	}

	var status map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("readyz body not JSON: %v", err)
	}
}
