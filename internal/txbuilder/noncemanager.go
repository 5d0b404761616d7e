package txbuilder

import "rrpnode/internal/request"

// AssignNonces hands out nonces for one sending address. kinds is that
// address's requests in discovery order; base is its on-chain transaction
// count. Requests that will not get a transaction this cycle (fulfilled,
// submitted, ignored or blocked) are skipped and get nil. Calling it twice
// with the same input gives the same result.
func AssignNonces(base uint64, kinds []request.Kind) []*uint64 {
	out := make([]*uint64, len(kinds))
	next := base
	for i, k := range kinds {
		if k != request.KindPending && k != request.KindErrored {
			continue
		}
		n := next
		out[i] = &n
		next++
	}
	return out
}
