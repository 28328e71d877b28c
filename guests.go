package reservekit

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// GuestCoordinator adds participants to an already-active reservation.
// Beyond address well-formedness it validates nothing: the ledger is the
// source of truth for guest-count limits and active-state gating.
type GuestCoordinator struct {
	coord *Coordinator
}

// NewGuestCoordinator creates a guest coordinator on top of a coordinator
func NewGuestCoordinator(coord *Coordinator) *GuestCoordinator {
	return &GuestCoordinator{coord: coord}
}

// AddGuest submits the add-guest operation and awaits confirmation
func (g *GuestCoordinator) AddGuest(ctx context.Context, opts *bind.TransactOpts, reservationID *big.Int, guest string) error {
	if !common.IsHexAddress(guest) {
		return ErrInvalidGuestAddress
	}

	return g.coord.AddGuest(ctx, opts, reservationID, common.HexToAddress(guest))
}
