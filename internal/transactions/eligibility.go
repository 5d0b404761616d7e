package transactions

import "rrpnode/internal/request"

// planGroup folds over one sponsor's requests in discovery order and decides
// which of them are held back this cycle. The result is parallel to entries;
// nil means the status is left as it is.
//
// Once a request is blocked every later eligible request of the sponsor is
// blocked too, so nonces are handed out without gaps. A request that would
// be blocked but has waited past its ignore window is ignored instead and
// does not hold back the rest.
func planGroup(entries []request.Entry, maxPerSponsor int) []request.Status {
	out := make([]request.Status, len(entries))
	var (
		blocked           bool
		pendingWithdrawal bool
		processed         int
	)
	block := func(i int, reason request.ErrorMessage) {
		if entries[i].Metadata.Stale() {
			out[i] = request.Ignored{Reason: request.ErrBlockedTooLong}
			return
		}
		if entries[i].Kind() != request.KindBlocked {
			out[i] = request.Blocked{Reason: reason}
		}
		blocked = true
	}

	for i, e := range entries {
		switch e.Kind() {
		case request.KindFulfilled, request.KindSubmitted, request.KindIgnored:
			continue
		case request.KindBlocked:
			block(i, "")
			continue
		}

		switch {
		case blocked:
			block(i, request.ErrBlockedByEarlierRequest)
		case e.Type == request.TypeApiCall && pendingWithdrawal:
			block(i, request.ErrPendingWithdrawal)
		case maxPerSponsor > 0 && processed >= maxPerSponsor:
			block(i, request.ErrSponsorRequestLimitExceeded)
		default:
			processed++
			if e.Type == request.TypeWithdrawal {
				pendingWithdrawal = true
			}
		}
	}
	return out
}

// plannedKinds is the status kind of every entry after the plan is applied.
func plannedKinds(entries []request.Entry, plan []request.Status) []request.Kind {
	kinds := make([]request.Kind, len(entries))
	for i, e := range entries {
		if plan[i] != nil {
			kinds[i] = plan[i].Kind()
			continue
		}
		kinds[i] = e.Kind()
	}
	return kinds
}
