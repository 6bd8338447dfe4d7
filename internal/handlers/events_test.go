package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/services"
	"github.com/wgelabs/lms-backend/internal/types"
)

type stubLimiter struct {
	calls map[string]int
	deny  map[string]bool
}

func (s *stubLimiter) Allow(_ context.Context, _, routeClass string) (*services.RateResult, error) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[routeClass]++
	if s.deny[routeClass] {
		return &services.RateResult{Allowed: false, Limit: 1, RetryAfter: time.Second}, nil
	}
	return &services.RateResult{Allowed: true, Limit: 100, Remaining: 99}, nil
}

type stubIngest struct {
	singles []services.EventInput
	batches [][]services.EventInput
}

func (s *stubIngest) IngestOne(_ context.Context, in services.EventInput) (*services.EventResult, error) {
	s.singles = append(s.singles, in)
	return &services.EventResult{Type: in.Type, ClassID: in.ClassID}, nil
}

func (s *stubIngest) IngestBatch(_ context.Context, ins []services.EventInput) ([]*services.BatchItemOutcome, error) {
	s.batches = append(s.batches, ins)
	outcomes := make([]*services.BatchItemOutcome, len(ins))
	for i := range ins {
		outcomes[i] = &services.BatchItemOutcome{Index: i, Accepted: true}
	}
	return outcomes, nil
}

type stubIdempotency struct{}

func (stubIdempotency) Admit(context.Context, string, string, string) (*services.AdmitResult, error) {
	return &services.AdmitResult{State: services.AdmitFresh}, nil
}
func (stubIdempotency) Store(context.Context, string, string, int, []byte) error { return nil }
func (stubIdempotency) Release(context.Context, string, string) error            { return nil }

func postJSON(t *testing.T, handler gin.HandlerFunc, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	handler(c)
	return w
}

func TestIngestEventClassifiesQuizRoute(t *testing.T) {
	limiter := &stubLimiter{}
	h := NewEventHandler(logger.NewNop(), &stubIngest{}, limiter, stubIdempotency{})

	w := postJSON(t, h.IngestEvent, "/api/events", map[string]any{
		"type": types.EventQuizSubmit, "course_id": "c1", "class_id": "q1",
		"payload": map[string]any{"answers": map[string]any{"q1": "a"}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if limiter.calls[services.RouteClassQuiz] != 1 || limiter.calls[services.RouteClassEvents] != 0 {
		t.Fatalf("route class calls = %+v, want one quiz charge", limiter.calls)
	}
}

// Quiz members inside a batch pay the quiz budget exactly as standalone
// submissions would.
func TestIngestBatchChargesQuizBudgetPerMember(t *testing.T) {
	limiter := &stubLimiter{}
	h := NewEventHandler(logger.NewNop(), &stubIngest{}, limiter, stubIdempotency{})

	w := postJSON(t, h.IngestBatch, "/api/events/batch", map[string]any{
		"events": []map[string]any{
			{"type": types.EventQuizSubmit, "course_id": "c1", "class_id": "q1"},
			{"type": types.EventStepView, "course_id": "c1", "class_id": "s1"},
			{"type": types.EventQuizSubmit, "course_id": "c1", "class_id": "q2"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if limiter.calls[services.RouteClassEvents] != 1 {
		t.Fatalf("events charges = %d, want 1", limiter.calls[services.RouteClassEvents])
	}
	if limiter.calls[services.RouteClassQuiz] != 2 {
		t.Fatalf("quiz charges = %d, want 2", limiter.calls[services.RouteClassQuiz])
	}
}

func TestIngestBatchRejectedWhenQuizBudgetExhausted(t *testing.T) {
	limiter := &stubLimiter{deny: map[string]bool{services.RouteClassQuiz: true}}
	ingest := &stubIngest{}
	h := NewEventHandler(logger.NewNop(), ingest, limiter, stubIdempotency{})

	w := postJSON(t, h.IngestBatch, "/api/events/batch", map[string]any{
		"events": []map[string]any{
			{"type": types.EventQuizSubmit, "course_id": "c1", "class_id": "q1"},
		},
	})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if len(ingest.batches) != 0 {
		t.Fatalf("batch processed despite rejection")
	}
}
