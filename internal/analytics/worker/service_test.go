package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/internal/analytics/router"
	"github.com/hopl-labs/hopl-backend/internal/analytics/types"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/outbox"
)

func TestBuildEnvelope(t *testing.T) {
	payload := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    "evt-1",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       json.RawMessage(`{"scan_id":"scan-1"}`),
	}
	msg := buildMessage(payload, map[string]string{
		"event_type":     "scan_completed",
		"aggregate_type": "scan",
		"aggregate_id":   "scan-1",
	})

	env, err := decodeEnvelope(msg)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventType != enums.EventScanCompleted {
		t.Fatalf("unexpected event type %v", env.EventType)
	}
	if env.AggregateType != enums.AggregateScan {
		t.Fatalf("unexpected aggregate type %v", env.AggregateType)
	}
	if env.Version != 1 {
		t.Fatalf("unexpected version %d", env.Version)
	}
	if env.AggregateID != "scan-1" {
		t.Fatalf("unexpected aggregate id %s", env.AggregateID)
	}
	if env.EventID != "evt-1" {
		t.Fatalf("unexpected event id %s", env.EventID)
	}
	if !env.OccurredAt.Equal(payload.OccurredAt) {
		t.Fatalf("unexpected occurred at %v", env.OccurredAt)
	}
}

func TestBuildEnvelopeFallsBackToAttributes(t *testing.T) {
	msg := buildMessage(outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)}, map[string]string{
		"event_id":       "evt-attr",
		"event_type":     "credits_refunded",
		"aggregate_type": "account",
		"aggregate_id":   "acct-1",
		"occurred_at":    "2026-03-02T08:00:00Z",
	})

	env, err := decodeEnvelope(msg)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventID != "evt-attr" {
		t.Fatalf("expected attribute event id, got %s", env.EventID)
	}
	if !env.OccurredAt.Equal(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected attribute timestamp, got %v", env.OccurredAt)
	}
}

func TestBuildEnvelopeRejectsUnknownTypes(t *testing.T) {
	msg := buildMessage(outbox.PayloadEnvelope{EventID: "evt"}, map[string]string{
		"event_type":     "account_deleted",
		"aggregate_type": "scan",
		"aggregate_id":   "x",
	})
	if _, err := decodeEnvelope(msg); err == nil {
		t.Fatal("expected unknown event type to fail")
	}
	msg.Attributes["event_type"] = "scan_completed"
	delete(msg.Attributes, "aggregate_id")
	if _, err := decodeEnvelope(msg); err == nil {
		t.Fatal("expected missing aggregate id to fail")
	}
}

func TestProcessHandlesAndMarks(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	msg := buildAnalyticsMessage(t)
	if res := svc.process(context.Background(), msg); res == nack {
		t.Fatal("expected ack")
	}
	if !handler.called || handler.envelope.EventType != enums.EventDocumentGenerated {
		t.Fatalf("expected handler invoked with envelope, got %+v", handler.envelope)
	}
	if len(manager.checked) != 1 || manager.checked[0] != handler.envelope.EventID {
		t.Fatalf("expected idempotency keyed by event id")
	}
}

func TestProcessIdempotencyFailureRetries(t *testing.T) {
	manager := &stubManager{checkErr: errors.New("redis down")}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	if res := svc.process(context.Background(), buildAnalyticsMessage(t)); res != nack {
		t.Fatal("expected nack when idempotency store fails")
	}
	if handler.called {
		t.Fatal("handler should not run without an idempotency mark")
	}
}

func TestProcessAlreadyProcessed(t *testing.T) {
	manager := &stubManager{checkResult: true}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	msg := buildAnalyticsMessage(t)
	res := svc.process(context.Background(), msg)
	if res == nack {
		t.Fatalf("expected ack, got nack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked when already processed")
	}
	if len(manager.checked) != 1 {
		t.Fatalf("expected check once, got %d", len(manager.checked))
	}
}

func TestProcessHandlerErrorRetries(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{err: errors.New("boom")}
	svc := newTestServiceWithDeps(t, handler, manager)

	msg := buildAnalyticsMessage(t)
	res := svc.process(context.Background(), msg)
	if res != nack {
		t.Fatalf("expected nack on handler error")
	}
	if !handler.called {
		t.Fatal("handler should be invoked")
	}
	if len(manager.deleted) != 1 {
		t.Fatalf("expected idempotency delete on failure")
	}
}

func TestProcessInvalidEnvelope(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, manager)

	msg := &gcppubsub.Message{Data: []byte("invalid json")}
	res := svc.process(context.Background(), msg)
	if res == nack {
		t.Fatalf("invalid envelope should ack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked")
	}
	if len(manager.checked) != 0 {
		t.Fatalf("idempotency manager should not be touched")
	}
}

func TestProcessUnsupportedEvent(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{err: router.ErrUnsupportedEventType}
	svc := newTestServiceWithDeps(t, handler, manager)

	msg := buildAnalyticsMessage(t)
	res := svc.process(context.Background(), msg)
	if res == nack {
		t.Fatalf("unsupported event should ack")
	}
	if len(manager.deleted) != 0 {
		t.Fatalf("idempotency delete should not run")
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard})
	if _, err := NewService(nil, &stubHandler{}, &stubManager{}, logg); err == nil {
		t.Fatal("expected missing subscription to fail")
	}
	if _, err := NewService(&stubReceiver{}, nil, &stubManager{}, logg); err == nil {
		t.Fatal("expected missing handler to fail")
	}
	if _, err := NewService(&stubReceiver{}, &stubHandler{}, &stubManager{}, logg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunDelegatesToReceiver(t *testing.T) {
	recv := &stubReceiver{err: context.Canceled}
	logg := logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard})
	svc, err := NewService(recv, &stubHandler{}, &stubManager{}, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected receiver error, got %v", err)
	}
	if !recv.called {
		t.Fatal("expected Receive to be called")
	}
}

func buildAnalyticsMessage(t *testing.T) *gcppubsub.Message {
	t.Helper()
	payload := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"document_id":"doc"}`),
	}
	return buildMessage(payload, map[string]string{
		"event_type":     "document_generated",
		"aggregate_type": "document",
		"aggregate_id":   "doc-123",
	})
}

func buildMessage(payload outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	data, _ := json.Marshal(payload)
	return &gcppubsub.Message{
		ID:         "msg-1",
		Data:       data,
		Attributes: attrs,
	}
}

func newTestServiceWithDeps(t *testing.T, handler Handler, manager *stubManager) *Service {
	t.Helper()
	return &Service{
		handler: handler,
		marks:   manager,
		logg:    logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}),
	}
}

type stubHandler struct {
	called   bool
	envelope types.Envelope
	err      error
}

func (h *stubHandler) Handle(ctx context.Context, envelope types.Envelope) error {
	h.called = true
	h.envelope = envelope
	return h.err
}

type stubManager struct {
	checkResult bool
	checkErr    error
	deleteErr   error
	checked     []string
	deleted     []string
}

func (s *stubManager) CheckAndMarkProcessed(ctx context.Context, eventID string) (bool, error) {
	s.checked = append(s.checked, eventID)
	return s.checkResult, s.checkErr
}

func (s *stubManager) Delete(ctx context.Context, eventID string) error {
	s.deleted = append(s.deleted, eventID)
	return s.deleteErr
}

type stubReceiver struct {
	called bool
	err    error
}

func (r *stubReceiver) Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error {
	r.called = true
	return r.err
}
