package request

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// GroupedRequests holds the requests of one provider, each list in discovery order.
type GroupedRequests struct {
	ApiCalls    []Request[ApiCall]    `json:"apiCalls"`
	Withdrawals []Request[Withdrawal] `json:"withdrawals"`
}

func (g GroupedRequests) Len() int {
	return len(g.ApiCalls) + len(g.Withdrawals)
}

// Clone copies both lists so the result can be updated without touching g.
func (g GroupedRequests) Clone() GroupedRequests {
	return GroupedRequests{
		ApiCalls:    slices.Clone(g.ApiCalls),
		Withdrawals: slices.Clone(g.Withdrawals),
	}
}

// Sorted returns a copy with both lists in discovery order.
func (g GroupedRequests) Sorted() GroupedRequests {
	out := g.Clone()
	slices.SortStableFunc(out.ApiCalls, func(a, b Request[ApiCall]) int {
		return a.Metadata.Compare(b.Metadata)
	})
	slices.SortStableFunc(out.Withdrawals, func(a, b Request[Withdrawal]) int {
		return a.Metadata.Compare(b.Metadata)
	})
	return out
}

// Ref points at one request inside a GroupedRequests.
type Ref struct {
	Type  Type
	Index int
}

type Entry struct {
	Ref
	Metadata Metadata
	Status   Status
}

func (e Entry) Kind() Kind {
	if e.Status == nil {
		return KindPending
	}
	return e.Status.Kind()
}

// SponsorGroup is every request of one sponsor, API calls and withdrawals
// interleaved in discovery order.
type SponsorGroup struct {
	Sponsor common.Address
	Entries []Entry
}

// BySponsor partitions the requests by sponsor. Groups are returned in the
// order their first request was discovered, which keeps the result
// deterministic for the same input.
func (g GroupedRequests) BySponsor() []SponsorGroup {
	type sponsored struct {
		sponsor common.Address
		entry   Entry
	}
	all := make([]sponsored, 0, g.Len())
	for i, r := range g.ApiCalls {
		all = append(all, sponsored{r.SponsorAddress, Entry{Ref{TypeApiCall, i}, r.Metadata, r.Status}})
	}
	for i, r := range g.Withdrawals {
		all = append(all, sponsored{r.SponsorAddress, Entry{Ref{TypeWithdrawal, i}, r.Metadata, r.Status}})
	}
	slices.SortStableFunc(all, func(a, b sponsored) int {
		return a.entry.Metadata.Compare(b.entry.Metadata)
	})

	index := map[common.Address]int{}
	groups := make([]SponsorGroup, 0)
	for _, s := range all {
		i, ok := index[s.sponsor]
		if !ok {
			i = len(groups)
			index[s.sponsor] = i
			groups = append(groups, SponsorGroup{Sponsor: s.sponsor})
		}
		groups[i].Entries = append(groups[i].Entries, s.entry)
	}
	return groups
}

// Sponsors returns the distinct sponsor and sponsor wallet pairs.
func (g GroupedRequests) Sponsors() map[common.Address]common.Address {
	out := make(map[common.Address]common.Address)
	for _, r := range g.ApiCalls {
		out[r.SponsorAddress] = r.SponsorWalletAddress
	}
	for _, r := range g.Withdrawals {
		out[r.SponsorAddress] = r.SponsorWalletAddress
	}
	return out
}

// CountByKind tallies statuses across both lists.
func (g GroupedRequests) CountByKind() map[Kind]int {
	out := make(map[Kind]int)
	for _, r := range g.ApiCalls {
		out[r.Kind()]++
	}
	for _, r := range g.Withdrawals {
		out[r.Kind()]++
	}
	return out
}
