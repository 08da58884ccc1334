package enums

import "slices"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateScan       OutboxAggregateType = "scan"
	AggregateDocument   OutboxAggregateType = "document"
	AggregateGeneration OutboxAggregateType = "generation"
	AggregateAccount    OutboxAggregateType = "account"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateScan,
	AggregateDocument,
	AggregateGeneration,
	AggregateAccount,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return lookup(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventScanCompleted     OutboxEventType = "scan_completed"
	EventDocumentGenerated OutboxEventType = "document_generated"
	EventGenerationFailed  OutboxEventType = "generation_failed"
	EventCreditsPurchased  OutboxEventType = "credits_purchased"
	EventCreditsRefunded   OutboxEventType = "credits_refunded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventScanCompleted,
	EventDocumentGenerated,
	EventGenerationFailed,
	EventCreditsPurchased,
	EventCreditsRefunded,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return lookup(validOutboxEventTypes, value, "event type")
}
