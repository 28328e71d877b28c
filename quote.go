package reservekit

import (
	"math/big"
)

// Quote computes the total due for a stay: nightlyRate * nights, in the
// smallest unit of the listing's payment asset. The ledger computes the same
// figure on creation; this exists so callers can show a price before
// submitting.
func Quote(listing *ListingSnapshot, nights uint32) *big.Int {
	return new(big.Int).Mul(listing.NightlyRate, new(big.Int).SetUint64(uint64(nights)))
}

// SplitAmount divides total by basis-point shares using integer arithmetic.
// Each share is floored; the rounding remainder goes to the first payer so
// the parts always sum exactly to total. The bps slice is assumed validated
// (ValidateDraft enforces the 10000 sum).
func SplitAmount(total *big.Int, bps []uint16) []*big.Int {
	parts := make([]*big.Int, len(bps))
	assigned := new(big.Int)

	for i, share := range bps {
		part := new(big.Int).Mul(total, big.NewInt(int64(share)))
		part.Div(part, big.NewInt(10000))
		parts[i] = part
		assigned.Add(assigned, part)
	}

	if len(parts) > 0 {
		remainder := new(big.Int).Sub(total, assigned)
		parts[0] = new(big.Int).Add(parts[0], remainder)
	}

	return parts
}
