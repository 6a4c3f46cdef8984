package enums

// OutboxDLQErrorReason explains why an outbox row was parked in outbox_dlq.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: publishing kept failing until attempts ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the row can never be published as stored,
	// e.g. an unknown event type or an undecodable payload.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}

// DLQReasonFor picks the reason for a row that failed on its attempt-th try.
func DLQReasonFor(retryable bool, attempt, maxAttempts int) (OutboxDLQErrorReason, bool) {
	if !retryable {
		return OutboxDLQReasonNonRetryable, true
	}
	if maxAttempts > 0 && attempt >= maxAttempts {
		return OutboxDLQReasonMaxAttempts, true
	}
	return "", false
}
