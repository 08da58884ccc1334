package enums

import "slices"

// OutboxDLQErrorReason records why the publisher gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	return slices.Contains(validOutboxDLQErrorReasons, r)
}
