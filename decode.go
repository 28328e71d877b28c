package reservekit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

// customErrors maps the escrow contract's custom error signatures to the
// messages surfaced to callers. Selectors are derived from the signatures at
// construction time so the table can never drift from the hashes.
var customErrors = map[string]string{
	"InvalidEligibility()": "invalid eligibility proof or signature",
	"InvalidReservation()": "invalid date format or business logic error",
	"AlreadyActive()":      "reservation is already active",
	"NothingDue()":         "reservation is already fully funded",
	"NotRenter()":          "caller is not the renter of this reservation",
	"GuestLimitReached()":  "guest limit reached for this reservation",
	"ListingInactive()":    "listing is not accepting reservations",
}

// Interpreter decodes opaque failure payloads from failed calls or reverted
// transactions into a ProtocolError. Every network-facing component routes
// its failures through one Interpreter so callers see a single shape.
type Interpreter struct {
	selectors map[[4]byte]string
}

// NewInterpreter builds an interpreter with the escrow contract's custom
// error selector table.
func NewInterpreter() *Interpreter {
	selectors := make(map[[4]byte]string, len(customErrors))
	for sig, msg := range customErrors {
		var sel [4]byte
		copy(sel[:], crypto.Keccak256([]byte(sig)))
		selectors[sel] = msg
	}
	return &Interpreter{selectors: selectors}
}

// Decode turns any failure into a ProtocolError. Already-decoded errors pass
// through unchanged. Optional fallback payloads (e.g. eth_call return data
// the caller still holds) are consulted when the error itself carries none.
func (i *Interpreter) Decode(err error, fallback ...[]byte) *ProtocolError {
	if err == nil {
		return nil
	}

	if pe := AsProtocolError(err); pe != nil {
		return pe
	}

	payload := extractPayload(err)
	if len(payload) == 0 {
		for _, data := range fallback {
			if len(data) > 0 {
				payload = data
				break
			}
		}
	}

	if len(payload) >= 4 {
		if pe := i.decodePayload(payload, err); pe != nil {
			return pe
		}
	}

	// No decodable payload: fall back to the failure's own message to
	// classify revert vs transport
	if isRevertMessage(err.Error()) {
		return &ProtocolError{
			Kind:    KindContractRevert,
			Message: "transaction reverted",
			Cause:   err,
			Raw:     payload,
		}
	}

	return &ProtocolError{
		Kind:    KindNetwork,
		Message: fmt.Sprintf("network error: %v", err),
		Cause:   err,
	}
}

// decodePayload attempts the known payload encodings in order: the standard
// Error(string) and solidity Panic(uint256) shapes UnpackRevert handles, then
// the custom error table.
func (i *Interpreter) decodePayload(payload []byte, cause error) *ProtocolError {
	if reason, err := abi.UnpackRevert(payload); err == nil {
		return &ProtocolError{
			Kind:    KindContractRevert,
			Message: reason,
			Cause:   cause,
			Raw:     payload,
		}
	}

	var sel [4]byte
	copy(sel[:], payload)

	if msg, ok := i.selectors[sel]; ok {
		return &ProtocolError{
			Kind:    KindContractRevert,
			Message: msg,
			Cause:   cause,
			Raw:     payload,
		}
	}

	// Unrecognized selector; a raw payload still means the contract spoke
	return &ProtocolError{
		Kind:    KindContractRevert,
		Message: "transaction reverted",
		Cause:   cause,
		Raw:     payload,
	}
}

// extractPayload digs the raw revert bytes out of whichever nested location
// the failure carries them. First non-empty match wins.
func extractPayload(err error) []byte {
	var de rpc.DataError
	if errors.As(err, &de) {
		if b := payloadBytes(de.ErrorData()); len(b) > 0 {
			return b
		}
	}
	return nil
}

// payloadBytes normalizes the shapes providers put revert data in: a hex
// string, raw bytes, or a map nesting either under "data" or an inner
// "originalError".
func payloadBytes(v interface{}) []byte {
	switch data := v.(type) {
	case nil:
		return nil
	case []byte:
		return data
	case hexutil.Bytes:
		return data
	case string:
		b, err := hexutil.Decode(data)
		if err != nil {
			return nil
		}
		return b
	case map[string]interface{}:
		if b := payloadBytes(data["data"]); len(b) > 0 {
			return b
		}
		return payloadBytes(data["originalError"])
	default:
		return nil
	}
}

func isRevertMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "revert") || strings.Contains(lower, "execution failed")
}
