// Package provider defines the contract the pipeline uses to talk to an
// external quote-providing service, plus the concrete implementations. The
// orchestrator and executor depend only on the Client interface and on the
// three failure classes below.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ablair264/SplitLease-Backend/internal/models"
)

// Credentials authenticate one account with a vendor.
type Credentials struct {
	Username string
	Password string
}

// Session is the opaque authentication state for one vendor client. It lives
// only for the orchestrator's process lifetime and may expire silently on the
// vendor side before ExpiresAt.
type Session struct {
	Token         string
	EstablishedAt time.Time
	ExpiresAt     time.Time
}

// Expired reports whether the local validity window has passed.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// VehicleHandle holds the vendor-internal identifiers a quote calculation
// requires. Produced by ResolveVehicle or taken directly from a vehicle that
// already carries codes.
type VehicleHandle struct {
	MakeCode    string
	ModelCode   string
	VariantCode string
}

// Client is the capability set a vendor integration must provide. One client
// instance talks to one vendor target; implementations decide the transport.
type Client interface {
	// Name identifies the vendor for logs and metrics.
	Name() string

	// EstablishSession authenticates and returns a fresh session. Failures
	// are always *AuthError.
	EstablishSession(ctx context.Context, creds Credentials) (Session, error)

	// IsSessionValid is a cheap check whether the session is still usable.
	IsSessionValid(ctx context.Context, sess Session) bool

	// ResolveVehicle maps free-text manufacturer/model/variant to vendor
	// identifiers. Vehicles that already carry codes resolve without a
	// lookup. Unknown vehicles return *NotFoundError.
	ResolveVehicle(ctx context.Context, v models.Vehicle) (VehicleHandle, error)

	// CalculateQuote prices one request. Failures are *QuoteError, except
	// rejected credentials/expired sessions which surface as *AuthError.
	CalculateQuote(ctx context.Context, sess Session, handle VehicleHandle, req models.QuoteRequest) (models.QuoteResult, error)
}

// AuthError means the vendor rejected or could not establish authentication.
// Fatal to the job being processed, never to the orchestrator.
type AuthError struct {
	Vendor string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s authentication failed: %s: %v", e.Vendor, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s authentication failed: %s", e.Vendor, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NotFoundError means the vendor catalog has no match for a vehicle. Local
// to that vehicle; the job continues.
type NotFoundError struct {
	Vehicle string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("vehicle not found in vendor catalog: %s", e.Vehicle)
}

// QuoteError is a failed quote calculation. Transient errors (timeouts,
// throttling, vendor 5xx) may be retried; permanent ones must not be.
type QuoteError struct {
	Transient bool
	Status    int
	Reason    string
	Err       error
}

func (e *QuoteError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Err != nil {
		return fmt.Sprintf("quote calculation failed (%s): %s: %v", kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("quote calculation failed (%s): %s", kind, e.Reason)
}

func (e *QuoteError) Unwrap() error { return e.Err }

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err is a vehicle-resolution miss.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsTransient reports whether err is a quote failure worth one retry.
func IsTransient(err error) bool {
	var qe *QuoteError
	return errors.As(err, &qe) && qe.Transient
}
