package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusOK {
		t.Fatalf("expected status 200 but got %d", got)
	}

	var body Envelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"id": "1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "demo"})
	WriteError(context.Background(), nil, w, err)

	if got := w.Code; got != http.StatusBadRequest {
		t.Fatalf("expected status 400 but got %d", got)
	}

	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	if body.Error.Message != "bad input" {
		t.Fatalf("expected caller message, got %q", body.Error.Message)
	}
	if body.Error.Details == nil {
		t.Fatalf("expected details in public payload")
	}
}

func TestWriteErrorInsufficientCredits(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeInsufficientCredits, "no credits left"))

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", w.Code)
	}
	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "INSUFFICIENT_CREDITS" || body.Error.Message != "no credits left" {
		t.Fatalf("unexpected error %+v", body.Error)
	}
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("boom"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}

	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeInternal) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	if strings.Contains(body.Error.Message, "boom") {
		t.Fatalf("internal cause leaked: %q", body.Error.Message)
	}
	if body.Error.Details != nil {
		t.Fatalf("details should be omitted for internal errors")
	}
}

func TestWriteErrorLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: &buf})

	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.New(pkgerrors.CodeNotFound, "scan not found"))
	if !strings.Contains(buf.String(), `"level":"info"`) || !strings.Contains(buf.String(), "request.rejected") {
		t.Fatalf("expected client errors logged at info, got %s", buf.String())
	}

	buf.Reset()
	WriteError(context.Background(), logg, httptest.NewRecorder(), errors.New("db down"))
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected faults logged at error, got %s", buf.String())
	}
}

func TestWriteErrorHidesMessageForDependencyFailures(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "redis dial tcp 10.0.0.3:6379 refused"))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Message != "dependency unavailable" {
		t.Fatalf("expected public message, got %q", body.Error.Message)
	}
}

func TestWriteErrorLogsStep(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})

	err := pkgerrors.New(pkgerrors.CodeGenerationFailed, "renderer timed out").
		WithDetails(map[string]any{"step": "render"})
	WriteError(context.Background(), logg, httptest.NewRecorder(), err)

	out := buf.String()
	for _, want := range []string{`"step":"render"`, `"status":502`, `"error_code":"GENERATION_FAILED"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in log line, got %s", want, out)
		}
	}
}

func TestWriteErrorEchoesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	ctx := WithRequestID(context.Background(), "req-42")
	WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "document not found"))

	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.RequestID != "req-42" {
		t.Fatalf("expected request id echoed, got %q", body.Error.RequestID)
	}
}
