package model

// DomainError represents a domain-level business rule violation.
type DomainError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
}

func (e DomainError) Error() string {
	return e.Message
}

// Domain errors returned by the model.
var (
	// ErrEmptyPayload indicates a record carried no event bytes at all.
	ErrEmptyPayload = DomainError{Code: "EMPTY_PAYLOAD", Message: "Notification payload is empty"}

	// ErrDeliveryFinished indicates the delivery was already acked or dead-lettered.
	ErrDeliveryFinished = DomainError{Code: "DELIVERY_FINISHED", Message: "Delivery already reached a terminal state"}

	// ErrNotProcessing indicates an outcome was recorded without a processing attempt in flight.
	ErrNotProcessing = DomainError{Code: "NOT_PROCESSING", Message: "Delivery is not being processed"}

	// ErrNotFailed indicates a retry or dead letter was requested for a delivery that has not failed.
	ErrNotFailed = DomainError{Code: "NOT_FAILED", Message: "Delivery has not failed"}
)
