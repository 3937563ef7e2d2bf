package bridge

import (
	"time"
)

// ConnState is the lifecycle state of one trading-platform connection.
type ConnState string

const (
	// StateConnecting covers the window between transport accept and the
	// register message. The registry never stores it; the server drops
	// connections stuck there past the configured grace.
	StateConnecting   ConnState = "connecting"
	StateRegistered   ConnState = "registered"
	StateActive       ConnState = "active"
	StateStale        ConnState = "stale"
	StateDisconnected ConnState = "disconnected"
)

// Connected reports whether the state counts as a live routing target.
func (s ConnState) Connected() bool {
	return s == StateRegistered || s == StateActive || s == StateStale
}

// Account is the registry's view of one trading account. Fields are only
// touched under the core mutex.
type Account struct {
	ID          string
	Platform    string
	Type        string
	DisplayName string

	State         ConnState
	LastHeartbeat time.Time
	RegisteredAt  time.Time
}

// CanProvide reports whether the account may act as a signal source.
func (a *Account) CanProvide() bool {
	return a != nil && (a.Type == "provider" || a.Type == "both")
}

// CanCopy reports whether the account may receive execute_trade.
func (a *Account) CanCopy() bool {
	return a != nil && (a.Type == "copyer" || a.Type == "both")
}

// registry tracks every account the relay has ever seen, in registration
// order. Accounts are never removed; disconnects only change state so that
// relationships stay valid across reconnects.
type registry struct {
	accounts map[string]*Account
	order    []string
}

func newRegistry() *registry {
	return &registry{accounts: map[string]*Account{}}
}

// upsert registers an account or refreshes an existing one in place.
// Re-registration with a known id resets the state machine to Registered.
func (r *registry) upsert(id, platform, accType, displayName string, now time.Time) (*Account, bool) {
	if acc, ok := r.accounts[id]; ok {
		acc.Platform = platform
		acc.Type = accType
		acc.DisplayName = displayName
		acc.State = StateRegistered
		acc.RegisteredAt = now
		return acc, false
	}
	acc := &Account{
		ID:           id,
		Platform:     platform,
		Type:         accType,
		DisplayName:  displayName,
		State:        StateRegistered,
		RegisteredAt: now,
	}
	r.accounts[id] = acc
	r.order = append(r.order, id)
	return acc, true
}

// touch records a heartbeat. The first heartbeat moves Registered to Active;
// a heartbeat from a Stale account recovers it to Active as well.
func (r *registry) touch(id string, now time.Time) *Account {
	acc, ok := r.accounts[id]
	if !ok {
		return nil
	}
	acc.LastHeartbeat = now
	switch acc.State {
	case StateRegistered, StateStale:
		acc.State = StateActive
	}
	return acc
}

func (r *registry) markDisconnected(id string) *Account {
	acc, ok := r.accounts[id]
	if !ok || acc.State == StateDisconnected {
		return nil
	}
	acc.State = StateDisconnected
	return acc
}

func (r *registry) get(id string) *Account {
	return r.accounts[id]
}

func (r *registry) list() []*Account {
	out := make([]*Account, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.accounts[id])
	}
	return out
}
