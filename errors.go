package reservekit

import (
	"errors"
	"fmt"
)

// Kind classifies a ProtocolError for retry and recovery decisions
type Kind string

const (
	// KindValidation: a draft invariant was violated. Never submitted to
	// the network; recoverable by correcting input
	KindValidation Kind = "VALIDATION"

	// KindSignature: proof TTL or format invalid, or the signature does
	// not recover to the trusted signer. Submission blocked
	KindSignature Kind = "SIGNATURE"

	// KindWrongNetwork: the active signer's chain does not match the
	// configured target chain. Fatal until the user switches networks
	KindWrongNetwork Kind = "WRONG_NETWORK"

	// KindNetwork: transport/RPC failure reaching the ledger. Transient;
	// the caller may retry the operation
	KindNetwork Kind = "NETWORK"

	// KindContractRevert: the ledger rejected the operation. Fatal for
	// that call; the caller may correct state and retry
	KindContractRevert Kind = "CONTRACT_REVERT"

	// KindStillPending: the outcome is not yet observable. Not an error
	// in the ledger's eyes; re-check later
	KindStillPending Kind = "STILL_PENDING"
)

// ProtocolError is the single decoded error shape crossing this package's
// public boundary. Raw retains the revert payload for diagnostics; Message
// is always the primary, human-readable text.
type ProtocolError struct {
	Kind    Kind
	Message string
	Cause   error
	Raw     []byte
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// NewProtocolError creates a new ProtocolError
func NewProtocolError(kind Kind, message string, cause error) *ProtocolError {
	return &ProtocolError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// AsProtocolError returns the ProtocolError in err's chain, or nil
func AsProtocolError(err error) *ProtocolError {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}

// IsKind reports whether err carries a ProtocolError of the given kind
func IsKind(err error, kind Kind) bool {
	if pe := AsProtocolError(err); pe != nil {
		return pe.Kind == kind
	}
	return false
}

// Draft validation failures, one per invariant. ValidateDraft returns the
// first violated invariant's error.
var (
	ErrNightsInvalid    = NewProtocolError(KindValidation, "nights must be at least 1", nil)
	ErrDatesOutOfOrder  = NewProtocolError(KindValidation, "end date must be after start date", nil)
	ErrNightsMismatch   = NewProtocolError(KindValidation, "nights must equal the whole-day span between the dates", nil)
	ErrSplitMismatch    = NewProtocolError(KindValidation, "payers and bps must have the same length", nil)
	ErrNoPayers         = NewProtocolError(KindValidation, "at least one payer is required", nil)
	ErrSplitNotComplete = NewProtocolError(KindValidation, "bps must sum to exactly 10000", nil)
)

// Proof failures raised before any network call
var (
	ErrProofExpired    = NewProtocolError(KindSignature, "proof expired", nil)
	ErrProofTTLTooLong = NewProtocolError(KindSignature, "ttl too long", nil)
	ErrProofMalformed  = NewProtocolError(KindSignature, "malformed signature", nil)
	ErrUntrustedSigner = NewProtocolError(KindSignature, "signature does not recover to the trusted signer", nil)
)

// Funding pre-checks, rejected before any state-changing call
var (
	ErrAlreadyActive = NewProtocolError(KindValidation, "already active - cannot re-fund", nil)
	ErrFullyFunded   = NewProtocolError(KindValidation, "already fully funded", nil)
)

// ErrInvalidGuestAddress rejects a malformed guest address before submission
var ErrInvalidGuestAddress = NewProtocolError(KindValidation, "invalid guest address", nil)

// ErrStillPending is returned when a confirmation wait timed out. The
// transaction may still land; callers should re-check rather than retry.
var ErrStillPending = NewProtocolError(KindStillPending, "still pending, re-check later", nil)

// ErrReservationUnidentified is returned when a create transaction confirmed
// but no reservation-created event was found in its logs. The reservation
// may exist; callers must re-query the ledger rather than trust a guessed id.
var ErrReservationUnidentified = NewProtocolError(KindStillPending, "reservation created but id not found in events", nil)
