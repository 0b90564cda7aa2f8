package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/txflow"
	"github.com/sharedcode/txflow/propagation"
)

// fakeCache implements only what Server needs from txflow.Cache for these
// tests: Ping.
type fakeCache struct {
	txflow.Cache
	pingErr error
}

func (f *fakeCache) Ping(ctx context.Context) error {
	return f.pingErr
}

func init() {
	gin.SetMode(gin.TestMode)
}

func testContext() (*gin.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestServer_HealthzReportsCacheStatus(t *testing.T) {
	s := &Server{recorder: NewRecorder(), cache: &fakeCache{}}
	c, rec := testContext()
	s.getHealth(c)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when cache pings clean, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_HealthzReportsCacheFailure(t *testing.T) {
	s := &Server{recorder: NewRecorder(), cache: &fakeCache{pingErr: errors.New("connection refused")}}
	c, rec := testContext()
	s.getHealth(c)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when cache ping fails, got %d", rec.Code)
	}
}

func TestServer_MetricsReflectsRecorderSnapshot(t *testing.T) {
	recorder := NewRecorder()
	recorder.AfterCompletion(propagation.CompletionCommitted)
	s := &Server{recorder: recorder, cache: &fakeCache{}}
	c, rec := testContext()
	s.getMetrics(c)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding metrics response: %v", err)
	}
	if got.Committed != 1 {
		t.Fatalf("expected one committed completion reflected in /metrics, got %+v", got)
	}
}

func TestVerify_DevModeBypassesAuth(t *testing.T) {
	t.Setenv("TXFLOW_ENV", "DEV")
	c, _ := testContext()
	if !verify(c) {
		t.Fatal("expected DEV mode to bypass verification")
	}
}

func TestVerify_QAModeAcceptsStaticToken(t *testing.T) {
	t.Setenv("TXFLOW_ENV", "QA")
	t.Setenv("TXFLOW_QA_TOKEN", "qa-secret")

	c, _ := testContext()
	c.Request.Header.Set("Authorization", "Bearer qa-secret")
	if !verify(c) {
		t.Fatal("expected matching QA token to be accepted")
	}
}

func TestVerify_RejectsMissingBearerToken(t *testing.T) {
	t.Setenv("TXFLOW_ENV", "")
	c, _ := testContext()
	if verify(c) {
		t.Fatal("expected a request without a bearer token to be rejected")
	}
}
