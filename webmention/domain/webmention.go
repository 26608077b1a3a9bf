package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Mention is a verified inbound webmention. It is never stored.
type Mention struct {
	Source *url.URL
	Target *url.URL
	PostID string
}

// Delivery records one outbound notification attempt.
type Delivery struct {
	Source     string
	Target     string
	Endpoint   string
	StatusCode int
	Error      string
	SentAt     time.Time
}

// Succeeded reports whether the endpoint accepted the mention.
func (d Delivery) Succeeded() bool {
	return d.Error == "" && d.StatusCode >= 200 && d.StatusCode < 300
}

// DeliveryRepository is the outbound delivery log.
type DeliveryRepository interface {
	Record(ctx context.Context, delivery Delivery) error
	// Delivered reports whether target already accepted a mention from source.
	Delivered(ctx context.Context, source string, target string) (bool, error)
	ListBySource(ctx context.Context, source string) ([]Delivery, error)
}

// ErrUnsupportedMediaType is returned when the request body is not form encoded.
var ErrUnsupportedMediaType = errors.New("webmention request must be application/x-www-form-urlencoded")

// ErrNoEntry is returned when the source document carries no h-entry.
var ErrNoEntry = errors.New("source has no h-entry")

// ValidationError rejects a claim before any network access.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid webmention: " + e.Reason
}

// CorroborationError means the source was fetched but does not reply to the target.
type CorroborationError struct {
	Reason string
}

func (e *CorroborationError) Error() string {
	return "source does not corroborate target: " + e.Reason
}

// TransportError wraps a failed or unsuccessful fetch.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("failed to fetch %s: status %d", e.URL, e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusFor maps a receive result to the HTTP status returned to the sender.
func StatusFor(err error) int {
	var (
		validation    *ValidationError
		corroboration *CorroborationError
		transport     *TransportError
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrNoEntry):
		return http.StatusBadRequest
	case errors.As(err, &validation), errors.As(err, &corroboration):
		return http.StatusNotFound
	case errors.As(err, &transport):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Outcome is a short label for metrics and logs.
func Outcome(err error) string {
	var (
		validation    *ValidationError
		corroboration *CorroborationError
		transport     *TransportError
	)

	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrUnsupportedMediaType):
		return "unsupported_media_type"
	case errors.Is(err, ErrNoEntry):
		return "no_entry"
	case errors.As(err, &validation):
		return "invalid"
	case errors.As(err, &corroboration):
		return "not_corroborated"
	case errors.As(err, &transport):
		return "fetch_failed"
	default:
		return "error"
	}
}
