package reservekit

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// fundedEvent mirrors the ReservationFunded event arguments
type fundedEvent struct {
	ReservationId *big.Int
	Payer         common.Address
	Amount        *big.Int
	NewTotalPaid  *big.Int
	Activated     bool
}

// FundingLedger tracks incremental funding against a reservation's due
// amount. Every funding call submits exactly the remaining due, selects the
// payment path from the listing's payment asset, and reports the ledger's
// own activation signal.
type FundingLedger struct {
	coord *Coordinator
	log   *slog.Logger
}

// NewFundingLedger creates a funding ledger on top of a coordinator
func NewFundingLedger(coord *Coordinator) *FundingLedger {
	return &FundingLedger{
		coord: coord,
		log:   coord.log,
	}
}

// Fund pays the remaining due on a reservation. The requested amount is
// recorded for diagnostics but never submitted: the amount sent is always
// totalDue - amountPaid, which keeps re-entry after a partial flow
// idempotent-safe. The returned attempt's Activated flag is the
// ledger-emitted value, verbatim.
func (f *FundingLedger) Fund(ctx context.Context, opts *bind.TransactOpts, reservationID, requested *big.Int) (*FundingAttempt, error) {
	if err := f.coord.checkNetwork(ctx); err != nil {
		return nil, err
	}

	record, err := f.coord.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	if record.Active {
		return nil, ErrAlreadyActive
	}

	remaining := record.Remaining()
	if remaining.Sign() <= 0 {
		return nil, ErrFullyFunded
	}

	listing, err := f.coord.Listing(ctx, record.ListingID)
	if err != nil {
		return nil, err
	}

	attempt := &FundingAttempt{
		ID:            uuid.New(),
		ReservationID: reservationID,
		Path:          listing.PaymentPath(),
		Requested:     requested,
		Submitted:     remaining,
	}

	if requested != nil && requested.Cmp(remaining) != 0 {
		f.log.Warn("requested funding amount ignored in favor of remaining due",
			"attempt", attempt.ID, "requested", requested, "submitted", remaining)
	}

	var receipt *types.Receipt
	if attempt.Path.IsNative() {
		// Native path: the amount rides along as transferred value
		valueOpts := *opts
		valueOpts.Value = remaining
		receipt, err = f.coord.transact(ctx, &valueOpts, f.coord.contract, "fundReservation", reservationID, remaining)
	} else {
		// Token path: make sure the contract may pull the remainder,
		// then fund with a plain call
		if err := f.ensureAllowance(ctx, opts, attempt.Path.Token, remaining, attempt); err != nil {
			return nil, err
		}
		receipt, err = f.coord.transact(ctx, opts, f.coord.contract, "fundReservation", reservationID, remaining)
	}
	if err != nil {
		return nil, fmt.Errorf("fund reservation: %w", err)
	}

	attempt.TxHash = receipt.TxHash

	funded, found := f.fundedEventFromLogs(receipt)
	if !found {
		// Confirmed but the activation signal is missing; the caller
		// must re-check rather than trust a client-side recomputation
		return attempt, fmt.Errorf("%w: funded event not found (tx %s)", ErrStillPending, receipt.TxHash)
	}

	attempt.Activated = funded.Activated

	f.log.Debug("reservation funded",
		"attempt", attempt.ID, "reservation", reservationID,
		"amount", remaining, "newTotalPaid", funded.NewTotalPaid,
		"activated", funded.Activated, "tx", receipt.TxHash)

	return attempt, nil
}

// ensureAllowance checks the signer's current allowance toward the escrow
// contract and, when insufficient, submits an approval for exactly the
// required amount and awaits its confirmation. Approval failures surface on
// their own; they never imply funding was attempted.
func (f *FundingLedger) ensureAllowance(ctx context.Context, opts *bind.TransactOpts, token common.Address, amount *big.Int, attempt *FundingAttempt) error {
	backend := f.coord.backend
	erc20 := bind.NewBoundContract(token, erc20ABI, backend, backend, backend)
	callOpts := &bind.CallOpts{Context: ctx, From: opts.From}

	var out []interface{}
	if err := erc20.Call(callOpts, &out, "allowance", opts.From, f.coord.cfg.Contract); err != nil {
		return fmt.Errorf("check allowance: %w", f.coord.interp.Decode(err))
	}
	allowance := out[0].(*big.Int)

	if allowance.Cmp(amount) >= 0 {
		// Re-entry after an abandoned approve-then-fund flow lands
		// here; no second approval is needed
		return nil
	}

	// Fail fast on an underfunded wallet instead of letting the approve
	// or transfer revert on-chain
	out = nil
	if err := erc20.Call(callOpts, &out, "balanceOf", opts.From); err != nil {
		return fmt.Errorf("check balance: %w", f.coord.interp.Decode(err))
	}
	balance := out[0].(*big.Int)
	if balance.Cmp(amount) < 0 {
		return NewProtocolError(KindValidation,
			fmt.Sprintf("insufficient token balance: have %s, need %s", balance, amount), nil)
	}

	receipt, err := f.coord.transact(ctx, opts, erc20, "approve", f.coord.cfg.Contract, amount)
	if err != nil {
		return fmt.Errorf("approve payment token: %w", err)
	}

	attempt.ApprovalTx = receipt.TxHash
	f.log.Debug("payment token approved",
		"attempt", attempt.ID, "token", token, "amount", amount, "tx", receipt.TxHash)

	return nil
}

// fundedEventFromLogs scans receipt logs restricted to the escrow contract
// for the ReservationFunded event.
func (f *FundingLedger) fundedEventFromLogs(receipt *types.Receipt) (*fundedEvent, bool) {
	eventID := escrowABI.Events[eventReservationFunded].ID

	for _, entry := range receipt.Logs {
		if entry.Address != f.coord.cfg.Contract {
			continue
		}
		if len(entry.Topics) == 0 || entry.Topics[0] != eventID {
			continue
		}

		var funded fundedEvent
		if err := f.coord.contract.UnpackLog(&funded, eventReservationFunded, *entry); err != nil {
			continue
		}
		return &funded, true
	}

	return nil, false
}
