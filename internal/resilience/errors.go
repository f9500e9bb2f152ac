package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Kind classifies a failure for logging and metrics.
type Kind string

const (
	// KindValidationGap is a missing or malformed input field that was
	// resolved locally through a fallback or default.
	KindValidationGap Kind = "validation_gap"
	// KindExternalTimeout is a bounded remote call that exceeded its deadline.
	KindExternalTimeout Kind = "external_timeout"
	// KindExternalRejection is a remote call that returned a non-success result.
	KindExternalRejection Kind = "external_rejection"
	// KindIdentityAmbiguity is a label or field identifier that could not be resolved.
	KindIdentityAmbiguity Kind = "identity_ambiguity"
	// KindInternal is anything else (encoding bugs, local I/O).
	KindInternal Kind = "internal"
)

// RejectionError is a non-success response from an external service.
type RejectionError struct {
	Service    string
	StatusCode int
	Code       string
	Detail     string
}

func (e *RejectionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: status %d (%s): %s", e.Service, e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Detail)
}

// NewRejectionError builds a RejectionError for service.
func NewRejectionError(service string, statusCode int, code, detail string) *RejectionError {
	return &RejectionError{Service: service, StatusCode: statusCode, Code: code, Detail: detail}
}

// AmbiguityError reports an identifier that could not be resolved.
type AmbiguityError struct {
	What  string
	Value string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("unresolved %s %q", e.What, e.Value)
}

// IsTimeout reports whether err is a deadline or network timeout anywhere in
// its chain.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "client.timeout exceeded") ||
		strings.Contains(msg, "tls handshake timeout")
}

// Classify maps err to a failure Kind. A nil error has no kind.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	if IsTimeout(err) {
		return KindExternalTimeout
	}
	var re *RejectionError
	if errors.As(err, &re) {
		return KindExternalRejection
	}
	var ae *AmbiguityError
	if errors.As(err, &ae) {
		return KindIdentityAmbiguity
	}
	return KindInternal
}

// Bounded runs fn under a deadline of d derived from ctx. An expired deadline
// is reported as a timeout even if fn returns a different error.
func Bounded(ctx context.Context, d time.Duration, op string, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(cctx)
	if err == nil {
		return nil
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrapf(context.DeadlineExceeded, "%s: exceeded %s: %v", op, d, err)
	}
	return eris.Wrap(err, op)
}
