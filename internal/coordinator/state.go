package coordinator

import (
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"rrpnode/internal/provider"
)

type Settings struct {
	AirnodeAddress common.Address `json:"airnodeAddress"`
	Stage          string         `json:"stage"`
	CloudProvider  string         `json:"cloudProvider"`
}

// State is the coordinator's view of one cycle. Every With* method returns
// a new value.
type State struct {
	ID          uuid.UUID        `json:"id"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt time.Time        `json:"completedAt"`
	Settings    Settings         `json:"settings"`
	Providers   []provider.State `json:"providers"`
}

func NewState(settings Settings, providers []provider.State, now time.Time) State {
	return State{
		ID:        uuid.New(),
		StartedAt: now,
		Settings:  settings,
		Providers: cloneProviders(providers),
	}
}

func (s State) WithProviders(ps []provider.State) State {
	next := s
	next.Providers = cloneProviders(ps)
	return next
}

func (s State) Completed(at time.Time) State {
	next := s
	next.Providers = cloneProviders(s.Providers)
	next.CompletedAt = at
	return next
}

func cloneProviders(ps []provider.State) []provider.State {
	out := slices.Clone(ps)
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out
}
