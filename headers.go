package booknotify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/coregx/booknotify/model"
)

// Record headers carrying the retry state between stages.
const (
	HeaderDeliveryID          = "booknotify-delivery-id"
	HeaderAttempts            = "booknotify-attempts"
	HeaderDueAt               = "booknotify-due-at"
	HeaderOriginalTopic       = "booknotify-original-topic"
	HeaderOriginalPartition   = "booknotify-original-partition"
	HeaderOriginalOffset      = "booknotify-original-offset"
	HeaderFirstFailureAt      = "booknotify-first-failure-at"
	HeaderExceptionType       = "booknotify-exception-type"
	HeaderExceptionMessage    = "booknotify-exception-message"
	HeaderExceptionStacktrace = "booknotify-exception-stacktrace"
	HeaderFailedTopic         = "booknotify-failed-topic"
	HeaderDeadLetterReason    = "booknotify-dlt-reason"
	HeaderDeadLetteredAt      = "booknotify-dead-lettered-at"
)

const timeLayout = time.RFC3339Nano

// deliveryFromRecord rebuilds the retry state of a consumed record. A record
// without retry headers is a first delivery. Present but unreadable headers
// are reported as an error together with a best-effort delivery.
func deliveryFromRecord(rec Record) (*model.Delivery, error) {
	deliveryID := rec.Header(HeaderDeliveryID)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	d := model.NewDelivery(deliveryID, rec.Topic, rec.Partition, rec.Offset)

	if v := rec.Header(HeaderOriginalTopic); v != "" {
		d.OriginalTopic = v
	}

	var err error
	if v := rec.Header(HeaderAttempts); v != "" {
		attempts, convErr := strconv.Atoi(v)
		if convErr != nil || attempts < 0 {
			err = fmt.Errorf("invalid %s header %q", HeaderAttempts, v)
		} else {
			d.Attempts = attempts
		}
	}
	if v := rec.Header(HeaderOriginalPartition); v != "" {
		p, convErr := strconv.ParseInt(v, 10, 32)
		if convErr != nil {
			err = fmt.Errorf("invalid %s header %q", HeaderOriginalPartition, v)
		} else {
			d.OriginalPartition = int32(p)
		}
	}
	if v := rec.Header(HeaderOriginalOffset); v != "" {
		o, convErr := strconv.ParseInt(v, 10, 64)
		if convErr != nil {
			err = fmt.Errorf("invalid %s header %q", HeaderOriginalOffset, v)
		} else {
			d.OriginalOffset = o
		}
	}
	if v := rec.Header(HeaderFirstFailureAt); v != "" {
		ts, parseErr := time.Parse(timeLayout, v)
		if parseErr != nil {
			err = fmt.Errorf("invalid %s header %q", HeaderFirstFailureAt, v)
		} else {
			d.FirstFailureAt = ts
		}
	}
	if v := rec.Header(HeaderDueAt); v != "" {
		ts, parseErr := time.Parse(timeLayout, v)
		if parseErr != nil {
			err = fmt.Errorf("invalid %s header %q", HeaderDueAt, v)
		} else {
			d.NextAttemptAt = ts
		}
	}
	d.LastFailure = model.Failure{
		Type:    rec.Header(HeaderExceptionType),
		Message: rec.Header(HeaderExceptionMessage),
		Stack:   rec.Header(HeaderExceptionStacktrace),
	}

	return d, err
}

// forwardRecord builds the record that moves a failed delivery to its next
// topic. The payload, key and foreign headers are carried over unchanged.
func forwardRecord(src Record, d *model.Delivery) Record {
	headers := make(map[string]string, len(src.Headers)+12)
	for k, v := range src.Headers {
		headers[k] = v
	}

	headers[HeaderDeliveryID] = d.DeliveryID
	headers[HeaderAttempts] = strconv.Itoa(d.Attempts)
	headers[HeaderOriginalTopic] = d.OriginalTopic
	headers[HeaderOriginalPartition] = strconv.FormatInt(int64(d.OriginalPartition), 10)
	headers[HeaderOriginalOffset] = strconv.FormatInt(d.OriginalOffset, 10)
	headers[HeaderFailedTopic] = d.Topic
	headers[HeaderExceptionType] = d.LastFailure.Type
	headers[HeaderExceptionMessage] = d.LastFailure.Message
	headers[HeaderExceptionStacktrace] = d.LastFailure.Stack
	if !d.FirstFailureAt.IsZero() {
		headers[HeaderFirstFailureAt] = d.FirstFailureAt.UTC().Format(timeLayout)
	}
	if d.NextAttemptAt.IsZero() {
		delete(headers, HeaderDueAt)
	} else {
		headers[HeaderDueAt] = d.NextAttemptAt.UTC().Format(timeLayout)
	}

	return Record{
		Topic:   d.NextTopic,
		Key:     src.Key,
		Value:   src.Value,
		Headers: headers,
	}
}

// deadLetterFromRecord reads a record consumed from the dead-letter topic.
func deadLetterFromRecord(rec Record) model.DeadLetter {
	dl := model.DeadLetter{
		DeliveryID:          rec.Header(HeaderDeliveryID),
		Key:                 rec.Key,
		Payload:             rec.Value,
		Reason:              model.DeadLetterReason(rec.Header(HeaderDeadLetterReason)),
		ExceptionType:       rec.Header(HeaderExceptionType),
		ExceptionMessage:    rec.Header(HeaderExceptionMessage),
		StackTrace:          rec.Header(HeaderExceptionStacktrace),
		OriginalTopic:       rec.Header(HeaderOriginalTopic),
		FailedTopic:         rec.Header(HeaderFailedTopic),
		DeadLetterTopic:     rec.Topic,
		DeadLetterPartition: rec.Partition,
		DeadLetterOffset:    rec.Offset,
	}

	if n, err := strconv.Atoi(rec.Header(HeaderAttempts)); err == nil {
		dl.AttemptCount = n
	}
	if p, err := strconv.ParseInt(rec.Header(HeaderOriginalPartition), 10, 32); err == nil {
		dl.OriginalPartition = int32(p)
	}
	if o, err := strconv.ParseInt(rec.Header(HeaderOriginalOffset), 10, 64); err == nil {
		dl.OriginalOffset = o
	}
	if ts, err := time.Parse(timeLayout, rec.Header(HeaderFirstFailureAt)); err == nil {
		dl.FirstFailureAt = ts
	}
	if ts, err := time.Parse(timeLayout, rec.Header(HeaderDeadLetteredAt)); err == nil {
		dl.DeadLetteredAt = ts
	} else {
		dl.DeadLetteredAt = rec.Timestamp
	}
	if event, err := model.DecodeEvent(rec.Value); err == nil {
		dl.Event = &event
	}

	return dl
}
