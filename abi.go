package reservekit

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs for the StayEscrow deployment. Only the surface this client
// consumes is declared.

// StayEscrowABI covers reservation creation, funding, guests and the
// read-only views.
const StayEscrowABI = `[
	{
		"inputs": [
			{"name": "listingId", "type": "uint256"},
			{"name": "startDate", "type": "uint64"},
			{"name": "endDate", "type": "uint64"},
			{"name": "nights", "type": "uint32"},
			{"name": "payers", "type": "address[]"},
			{"name": "bps", "type": "uint16[]"},
			{"name": "expiry", "type": "uint64"},
			{"name": "nonce", "type": "uint64"},
			{"name": "signature", "type": "bytes"}
		],
		"name": "createReservation",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "reservationId", "type": "uint256"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "fundReservation",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "reservationId", "type": "uint256"},
			{"name": "guest", "type": "address"}
		],
		"name": "addGuest",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "", "type": "uint256"}],
		"name": "reservations",
		"outputs": [
			{"name": "listingId", "type": "uint256"},
			{"name": "renter", "type": "address"},
			{"name": "startDate", "type": "uint64"},
			{"name": "endDate", "type": "uint64"},
			{"name": "totalDue", "type": "uint256"},
			{"name": "amountPaid", "type": "uint256"},
			{"name": "active", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "", "type": "uint256"}],
		"name": "listings",
		"outputs": [
			{"name": "builder", "type": "address"},
			{"name": "paymentToken", "type": "address"},
			{"name": "nightlyRate", "type": "uint256"},
			{"name": "maxGuests", "type": "uint32"},
			{"name": "requiresProof", "type": "bool"},
			{"name": "active", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "reservationId", "type": "uint256"},
			{"indexed": true, "name": "listingId", "type": "uint256"},
			{"indexed": true, "name": "renter", "type": "address"},
			{"indexed": false, "name": "startDate", "type": "uint64"},
			{"indexed": false, "name": "endDate", "type": "uint64"},
			{"indexed": false, "name": "totalDue", "type": "uint256"}
		],
		"name": "ReservationCreated",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "reservationId", "type": "uint256"},
			{"indexed": true, "name": "payer", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"},
			{"indexed": false, "name": "newTotalPaid", "type": "uint256"},
			{"indexed": false, "name": "activated", "type": "bool"}
		],
		"name": "ReservationFunded",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "reservationId", "type": "uint256"},
			{"indexed": true, "name": "guest", "type": "address"}
		],
		"name": "GuestAdded",
		"type": "event"
	}
]`

// ERC20ABI is the slice of the token interface used by the funding path
const ERC20ABI = `[
	{
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "owner", "type": "address"},
			{"indexed": true, "name": "spender", "type": "address"},
			{"indexed": false, "name": "value", "type": "uint256"}
		],
		"name": "Approval",
		"type": "event"
	}
]`

// Event names emitted by the escrow contract
const (
	eventReservationCreated = "ReservationCreated"
	eventReservationFunded  = "ReservationFunded"
	eventGuestAdded         = "GuestAdded"
)

var (
	escrowABI = mustParseABI(StayEscrowABI)
	erc20ABI  = mustParseABI(ERC20ABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded ABI: %v", err))
	}
	return parsed
}
