package reservekit

// ValidateDraft checks a proposed reservation against every invariant the
// ledger itself enforces, in a fixed order, and returns the first violated
// invariant's error. It is pure and performs no I/O; its only purpose is to
// avoid paying for a transaction the ledger would certainly reject.
func ValidateDraft(draft ReservationDraft) error {
	if draft.Nights < 1 {
		return ErrNightsInvalid
	}

	if draft.EndDate <= draft.StartDate {
		return ErrDatesOutOfOrder
	}

	if uint64(draft.Nights) != (draft.EndDate-draft.StartDate)/86400 {
		return ErrNightsMismatch
	}

	if len(draft.Payers) != len(draft.Bps) {
		return ErrSplitMismatch
	}

	if len(draft.Payers) == 0 {
		return ErrNoPayers
	}

	// Exact integer sum, no tolerance
	sum := 0
	for _, bps := range draft.Bps {
		sum += int(bps)
	}
	if sum != 10000 {
		return ErrSplitNotComplete
	}

	return nil
}
