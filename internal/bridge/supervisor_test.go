package bridge

import (
	"context"
	"testing"
	"time"

	"tradebridge/internal/protocol"
)

func accountState(t *testing.T, c *Core, id string) string {
	t.Helper()
	for _, view := range c.AccountsSnapshot().Accounts {
		if view.AccountID == id {
			return view.ConnectionState
		}
	}
	t.Fatalf("account %s not in snapshot", id)
	return ""
}

func TestSweep_FreshAccountUntouched(t *testing.T) {
	core, _ := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeProvider)

	stale, disconnected := core.Sweep(context.Background(), time.Now().UTC().Add(30*time.Second))
	if stale != 0 || disconnected != 0 {
		t.Fatalf("stale=%d disconnected=%d want 0/0", stale, disconnected)
	}
	if s := accountState(t, core, "A"); s != string(StateActive) {
		t.Fatalf("state=%s want active", s)
	}
}

func TestSweep_MissedHeartbeatsGoStaleThenDisconnected(t *testing.T) {
	core, sink := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeProvider)

	now := time.Now().UTC()
	stale, disconnected := core.Sweep(context.Background(), now.Add(90*time.Second))
	if stale != 1 || disconnected != 0 {
		t.Fatalf("first sweep stale=%d disconnected=%d want 1/0", stale, disconnected)
	}
	if s := accountState(t, core, "A"); s != string(StateStale) {
		t.Fatalf("state=%s want stale", s)
	}

	stale, disconnected = core.Sweep(context.Background(), now.Add(200*time.Second))
	if stale != 0 || disconnected != 1 {
		t.Fatalf("second sweep stale=%d disconnected=%d want 0/1", stale, disconnected)
	}
	if s := accountState(t, core, "A"); s != string(StateDisconnected) {
		t.Fatalf("state=%s want disconnected", s)
	}

	// Both transitions must reach observers.
	seen := map[string]int{}
	for _, typ := range sink.broadcastTypes() {
		seen[typ]++
	}
	if seen[protocol.TypeAccountStatus] < 2 {
		t.Fatalf("account_status broadcasts=%d want >=2", seen[protocol.TypeAccountStatus])
	}
}

func TestSweep_StaleCopyerExcludedFromRouting(t *testing.T) {
	core, sink := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeProvider)
	registerActive(t, core, "B", protocol.AccountTypeCopyer)
	link(t, core, "A", "B", 1.0, 5.0)

	core.Sweep(context.Background(), time.Now().UTC().Add(90*time.Second))
	// The provider keeps sending; a fresh heartbeat revives it but not B.
	core.Heartbeat(context.Background(), "A")

	if n := core.RouteTradeSignal(context.Background(), "A", signal(1)); n != 0 {
		t.Fatalf("delivered=%d want 0, stale copyer must be skipped", n)
	}
	if len(sink.sentTo("B")) != 0 {
		t.Fatalf("stale copyer must not receive trades")
	}
	// The relationship itself survives the outage.
	rels := core.RelationshipsSnapshot().Relationships
	if len(rels) != 1 || !rels[0].Enabled {
		t.Fatalf("relationship must survive liveness transitions: %+v", rels)
	}
}

func TestSweep_HeartbeatRecoversStaleAccount(t *testing.T) {
	core, _ := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeProvider)

	core.Sweep(context.Background(), time.Now().UTC().Add(90*time.Second))
	if s := accountState(t, core, "A"); s != string(StateStale) {
		t.Fatalf("state=%s want stale", s)
	}

	core.Heartbeat(context.Background(), "A")
	if s := accountState(t, core, "A"); s != string(StateActive) {
		t.Fatalf("state=%s want active after heartbeat", s)
	}
}

func TestSweep_DisconnectedAccountStaysUntilReregister(t *testing.T) {
	core, _ := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeProvider)

	now := time.Now().UTC()
	core.Sweep(context.Background(), now.Add(200*time.Second))
	if s := accountState(t, core, "A"); s != string(StateDisconnected) {
		t.Fatalf("state=%s want disconnected", s)
	}

	// Later sweeps leave the record alone.
	stale, disconnected := core.Sweep(context.Background(), now.Add(400*time.Second))
	if stale != 0 || disconnected != 0 {
		t.Fatalf("sweep of disconnected account: stale=%d disconnected=%d", stale, disconnected)
	}

	core.Register(context.Background(), protocol.Register{
		AccountID:   "A",
		Platform:    protocol.PlatformMT5,
		AccountType: protocol.AccountTypeProvider,
	})
	if s := accountState(t, core, "A"); s != string(StateRegistered) {
		t.Fatalf("state=%s want registered after reconnect", s)
	}
}
