package reservekit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Coordinator submits state-changing operations to the escrow contract,
// awaits finality, and extracts domain identifiers from emitted events.
// The ledger orders operations by a per-signer sequence number, so the
// coordinator holds its lock for the full submit-and-confirm window and
// callers must not share one signer across coordinators.
type Coordinator struct {
	cfg      Config
	backend  Backend
	contract *bind.BoundContract
	proofs   ProofService
	interp   *Interpreter
	log      *slog.Logger

	// mu serializes submissions against the shared signer session
	mu sync.Mutex
}

// NewCoordinator validates cfg and creates a coordinator bound to the
// configured escrow contract.
func NewCoordinator(cfg Config, backend Backend, proofs ProofService) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}

	if proofs == nil {
		return nil, fmt.Errorf("proof service is required")
	}

	if cfg.Mode == ModeDevelopment {
		cfg.Logger.Warn("running in development mode: eligibility signature enforcement is BYPASSED")
	}

	return &Coordinator{
		cfg:      cfg,
		backend:  backend,
		contract: bind.NewBoundContract(cfg.Contract, escrowABI, backend, backend, backend),
		proofs:   proofs,
		interp:   NewInterpreter(),
		log:      cfg.Logger,
	}, nil
}

// CreateReservation validates the draft and proof, submits createReservation,
// awaits confirmation, and returns the new reservation id extracted from the
// ReservationCreated event. When the transaction confirmed but no matching
// event was found, it returns ErrReservationUnidentified rather than a
// guessed id.
func (c *Coordinator) CreateReservation(ctx context.Context, opts *bind.TransactOpts, draft ReservationDraft, proof EligibilityProof) (*big.Int, error) {
	// Client-side invariants first: zero side effects on rejection
	if err := ValidateDraft(draft); err != nil {
		return nil, err
	}

	if err := c.proofs.Validate(proof); err != nil {
		return nil, err
	}

	if err := c.checkNetwork(ctx); err != nil {
		return nil, err
	}

	receipt, err := c.transact(ctx, opts, c.contract, "createReservation",
		draft.ListingID, draft.StartDate, draft.EndDate, draft.Nights,
		draft.Payers, draft.Bps,
		proof.Expiry, proof.Nonce, proof.Signature)
	if err != nil {
		return nil, err
	}

	id, found := c.reservationIDFromLogs(receipt)
	if !found {
		return nil, fmt.Errorf("%w (tx %s)", ErrReservationUnidentified, receipt.TxHash)
	}

	// The event is the id source of truth, but never report success
	// without re-querying the resulting state
	record, err := c.Reservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Renter == (common.Address{}) {
		return nil, fmt.Errorf("%w (tx %s)", ErrReservationUnidentified, receipt.TxHash)
	}

	c.log.Debug("reservation created",
		"reservation", id, "listing", draft.ListingID, "tx", receipt.TxHash)

	return id, nil
}

// AddGuest is the passthrough used by GuestCoordinator. It submits addGuest
// and awaits confirmation.
func (c *Coordinator) AddGuest(ctx context.Context, opts *bind.TransactOpts, reservationID *big.Int, guest common.Address) error {
	if err := c.checkNetwork(ctx); err != nil {
		return err
	}

	receipt, err := c.transact(ctx, opts, c.contract, "addGuest", reservationID, guest)
	if err != nil {
		return err
	}

	c.log.Debug("guest added", "reservation", reservationID, "guest", guest, "tx", receipt.TxHash)
	return nil
}

// Reservation fetches the current ReservationRecord from the ledger
func (c *Coordinator) Reservation(ctx context.Context, id *big.Int) (*ReservationRecord, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "reservations", id); err != nil {
		return nil, c.interp.Decode(err)
	}

	return &ReservationRecord{
		ID:         id,
		ListingID:  out[0].(*big.Int),
		Renter:     out[1].(common.Address),
		StartDate:  out[2].(uint64),
		EndDate:    out[3].(uint64),
		TotalDue:   out[4].(*big.Int),
		AmountPaid: out[5].(*big.Int),
		Active:     out[6].(bool),
	}, nil
}

// Listing fetches the current ListingSnapshot from the ledger
func (c *Coordinator) Listing(ctx context.Context, id *big.Int) (*ListingSnapshot, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "listings", id); err != nil {
		return nil, c.interp.Decode(err)
	}

	return &ListingSnapshot{
		ID:            id,
		Builder:       out[0].(common.Address),
		PaymentToken:  out[1].(common.Address),
		NightlyRate:   out[2].(*big.Int),
		MaxGuests:     out[3].(uint32),
		RequiresProof: out[4].(bool),
		Active:        out[5].(bool),
	}, nil
}

// checkNetwork rejects submissions client-side when the active signer is not
// on the configured chain.
func (c *Coordinator) checkNetwork(ctx context.Context) error {
	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return c.interp.Decode(err)
	}

	if chainID.Cmp(c.cfg.ChainID) != 0 {
		return NewProtocolError(KindWrongNetwork,
			fmt.Sprintf("wrong network: signer is on chain %s, expected %s", chainID, c.cfg.ChainID), nil)
	}

	return nil
}

// transact submits one state-changing call against the given bound contract
// and waits for it to be mined, holding the signer lock for the whole window.
// A confirmation wait that outlives ConfirmTimeout reports still-pending;
// the transaction's fate then belongs to the ledger alone.
func (c *Coordinator) transact(ctx context.Context, opts *bind.TransactOpts, contract *bind.BoundContract, method string, args ...interface{}) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	callOpts := *opts
	callOpts.Context = ctx

	tx, err := contract.Transact(&callOpts, method, args...)
	if err != nil {
		return nil, c.interp.Decode(err)
	}

	c.log.Debug("transaction submitted", "method", method, "tx", tx.Hash())

	waitCtx := ctx
	if c.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
		defer cancel()
	}

	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w (tx %s)", ErrStillPending, tx.Hash())
		}
		return nil, c.interp.Decode(err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		// A mined-but-failed transaction carries no revert payload in
		// its receipt; the hash is kept for diagnostics
		return nil, NewProtocolError(KindContractRevert,
			fmt.Sprintf("transaction reverted (tx %s)", receipt.TxHash), nil)
	}

	c.log.Debug("transaction confirmed", "method", method, "tx", receipt.TxHash, "block", receipt.BlockNumber)

	return receipt, nil
}

// reservationIDFromLogs scans receipt logs restricted to the escrow contract
// for the ReservationCreated event and extracts the id from its first topic
// argument.
func (c *Coordinator) reservationIDFromLogs(receipt *types.Receipt) (*big.Int, bool) {
	eventID := escrowABI.Events[eventReservationCreated].ID

	for _, entry := range receipt.Logs {
		if entry.Address != c.cfg.Contract {
			continue
		}
		if len(entry.Topics) < 2 || entry.Topics[0] != eventID {
			continue
		}
		return new(big.Int).SetBytes(entry.Topics[1].Bytes()), true
	}

	return nil, false
}
