package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(context.Background(), nil, w, status, Envelope{Data: data})
}

// WriteError maps err onto the error envelope. Untyped errors become
// CodeInternal; the response never carries more than the code's metadata
// allows, while the log line gets the full Report.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := ErrorBody{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		RequestID: RequestIDFromContext(ctx),
	}
	if meta.ExposeMessage && typed.Message() != "" {
		body.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		logRejection(ctx, logg, meta.HTTPStatus, typed)
	}
	writeJSON(ctx, logg, w, meta.HTTPStatus, ErrorEnvelope{Error: body})
}

func logRejection(ctx context.Context, logg *logger.Logger, status int, typed *pkgerrors.Error) {
	fields := pkgerrors.Describe(typed).Fields()
	fields["status"] = status
	if details, ok := typed.Details().(map[string]any); ok {
		if step, ok := details["step"]; ok {
			fields["step"] = step
		}
	}
	if status >= http.StatusInternalServerError {
		// Error attaches both of these itself.
		delete(fields, "error")
		delete(fields, "error_code")
		logg.Error(logg.WithFields(ctx, fields), "request.error", typed)
		return
	}
	ctx = logg.WithFields(ctx, fields)
	logg.Info(ctx, "request.rejected")
}

func writeJSON(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logg != nil {
		logg.Error(ctx, "response.encode_failed", err)
	}
}
