package request

import (
	"github.com/ethereum/go-ethereum/common"
)

var (
	sponsorA = common.HexToAddress("0x69e2B095fbAc6C3f9E528Ef21882b86BF1595181")
	sponsorB = common.HexToAddress("0x99bd3a5A045066F1CEf37A0A952DFa87Af9D898E")
)

func apiCallAt(id byte, sponsor common.Address, block uint64, logIndex uint) Request[ApiCall] {
	return Request[ApiCall]{
		ID:             common.BytesToHash([]byte{id}),
		SponsorAddress: sponsor,
		Status:         Pending{},
		Metadata:       Metadata{BlockNumber: block, LogIndex: logIndex, CurrentBlock: block + 1},
		Payload:        ApiCall{Type: CallTypeFull, FulfillFunctionID: FunctionID{0x48, 0xa4, 0x15, 0x7c}},
	}
}

func withdrawalAt(id byte, sponsor common.Address, block uint64, logIndex uint) Request[Withdrawal] {
	return Request[Withdrawal]{
		ID:             common.BytesToHash([]byte{id}),
		SponsorAddress: sponsor,
		Status:         Pending{},
		Metadata:       Metadata{BlockNumber: block, LogIndex: logIndex, CurrentBlock: block + 1},
	}
}
