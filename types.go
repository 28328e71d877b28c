package reservekit

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// ListingSnapshot is a read-only view of a listed resource as the ledger
// reports it. It is re-fetched on demand and never mutated by this package.
type ListingSnapshot struct {
	// ID is the listing identifier on the escrow contract
	ID *big.Int

	// Builder is the address that listed the resource
	Builder common.Address

	// PaymentToken is the payment asset. The zero address is the
	// native-asset sentinel; anything else is an ERC-20 contract address
	PaymentToken common.Address

	// NightlyRate is the price per night in the smallest unit of the
	// payment asset
	NightlyRate *big.Int

	// MaxGuests is the guest-count limit enforced by the ledger
	MaxGuests uint32

	// RequiresProof indicates whether reservations against this listing
	// must carry a signed eligibility proof. Callers use it to decide
	// whether to request a proof before submitting
	RequiresProof bool

	// Active indicates whether the listing accepts new reservations
	Active bool
}

// PaymentPath returns the payment path for this listing, resolved once per
// funding attempt rather than re-derived at every branch point.
func (l *ListingSnapshot) PaymentPath() PaymentPath {
	return PaymentPath{Token: l.PaymentToken}
}

// PaymentPath is a tagged variant selecting how a funding call pays:
// the native asset (zero Token) or an ERC-20 approve-then-transfer path.
type PaymentPath struct {
	// Token is the ERC-20 contract address, or the zero address for the
	// native asset
	Token common.Address
}

// IsNative reports whether the funding call pays with the native asset
func (p PaymentPath) IsNative() bool {
	return p.Token == (common.Address{})
}

func (p PaymentPath) String() string {
	if p.IsNative() {
		return "native"
	}
	return "token:" + p.Token.Hex()
}

// ReservationDraft is a proposed reservation as assembled by a caller.
// It is consumed once by ValidateDraft and CreateReservation, then discarded.
type ReservationDraft struct {
	// ListingID is the listing to reserve
	ListingID *big.Int

	// StartDate and EndDate are seconds since epoch
	StartDate uint64
	EndDate   uint64

	// Nights is the whole-day span of the stay, at least 1
	Nights uint32

	// Payers is the ordered, non-empty list of co-payer addresses
	Payers []common.Address

	// Bps holds each payer's share in basis points. Parallel to Payers
	// and must sum to exactly 10000
	Bps []uint16
}

// EligibilityProof is a signed, time-bounded claim that a signer may reserve
// a given listing. Single-use by protocol convention: the nonce is tied to
// the signer and listing.
type EligibilityProof struct {
	// Expiry is seconds since epoch; the ledger rejects proofs more than
	// ProofTTL in the future or already past
	Expiry uint64

	// Nonce is the anti-replay value bound into the signed payload
	Nonce uint64

	// Signature is the 65-byte recoverable signature over the typed data
	Signature []byte
}

// ReservationRecord mirrors the ledger's reservation state. It is owned by
// the ledger; this package only refreshes cached snapshots of it.
type ReservationRecord struct {
	ID         *big.Int
	ListingID  *big.Int
	Renter     common.Address
	StartDate  uint64
	EndDate    uint64
	TotalDue   *big.Int
	AmountPaid *big.Int
	Active     bool
}

// Remaining returns totalDue - amountPaid. A non-positive result means the
// reservation is fully funded.
func (r *ReservationRecord) Remaining() *big.Int {
	return new(big.Int).Sub(r.TotalDue, r.AmountPaid)
}

// FundingAttempt records one funding call for diagnostics. The submitted
// amount is always the computed remaining due, never the caller-requested
// amount.
type FundingAttempt struct {
	// ID correlates log lines and reports for this attempt
	ID uuid.UUID

	ReservationID *big.Int
	Path          PaymentPath

	// Requested is the caller-supplied amount, retained for diagnostics
	Requested *big.Int

	// Submitted is the amount actually sent: totalDue - amountPaid
	Submitted *big.Int

	// ApprovalTx is set on the token path when an approval was submitted
	ApprovalTx common.Hash

	// TxHash is the funding transaction
	TxHash common.Hash

	// Activated is the ledger-emitted activation flag, verbatim
	Activated bool
}

// ProofService builds and checks eligibility proofs. The eligibility package
// provides the production implementation; tests substitute their own.
type ProofService interface {
	// BuildProof obtains a proof that signer may reserve listingID
	BuildProof(ctx context.Context, signer common.Address, listingID *big.Int) (EligibilityProof, error)

	// Validate runs the TTL and format checks on a proof. It is called
	// before every submission and performs no I/O
	Validate(proof EligibilityProof) error
}

// Backend is the chain access this package needs. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}
