package router

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hopl-labs/hopl-backend/internal/analytics/types"
	"github.com/hopl-labs/hopl-backend/internal/analytics/writer"
	"github.com/hopl-labs/hopl-backend/pkg/outbox/payloads"
)

type scanCompletedHandler struct {
	writer Writer
}

func (h *scanCompletedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.ScanCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for scan_completed", payload)
	}

	raw, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return err
	}
	failed := event.FailedChecks
	if failed == nil {
		failed = []string{}
	}

	row := types.ScanFactRow{
		EventID:          envelope.EventID,
		OccurredAt:       occurredAt(envelope, event.CompletedAt),
		ScanID:           event.ScanID.String(),
		UserID:           uuidPtrString(event.UserID),
		Host:             scanHost(event.URL),
		Score:            int64(event.Score),
		RiskLevel:        string(event.RiskLevel),
		Jurisdiction:     string(event.Jurisdiction),
		FailedCheckCount: int64(len(failed)),
		FailedChecks:     failed,
		Unreachable:      event.Unreachable,
		CatalogVersion:   event.CatalogVersion,
		Payload:          raw,
	}
	return h.writer.InsertScanFact(ctx, row)
}

// scanHost keeps only the host so full URLs with query strings never land in
// the warehouse.
func scanHost(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return strings.TrimSpace(raw)
	}
	return strings.ToLower(parsed.Hostname())
}
