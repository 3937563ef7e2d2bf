package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"tradebridge/internal/protocol"
)

func TestCreateRelationship_DefaultsApply(t *testing.T) {
	core, _ := newTestCore(t)

	view, err := core.CreateRelationship(context.Background(), protocol.CreateRelationship{
		ProviderID: "A",
		CopyerID:   "B",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if view.VolumeMultiplier != 1.0 {
		t.Fatalf("multiplier=%v want default 1.0", view.VolumeMultiplier)
	}
	if view.MaxLots != testConfig().DefaultMaxLots {
		t.Fatalf("max_lots=%v want default %v", view.MaxLots, testConfig().DefaultMaxLots)
	}
	if !view.Enabled {
		t.Fatalf("new relationship must start enabled")
	}
}

func TestCreateRelationship_BeforeEitherAccountRegisters(t *testing.T) {
	core, _ := newTestCore(t)

	if _, err := core.CreateRelationship(context.Background(), protocol.CreateRelationship{
		ProviderID: "A",
		CopyerID:   "B",
	}); err != nil {
		t.Fatalf("relationships must not require registered accounts: %v", err)
	}

	// Once both sides come online the pre-provisioned link routes.
	registerActive(t, core, "A", protocol.AccountTypeProvider)
	registerActive(t, core, "B", protocol.AccountTypeCopyer)
	if n := core.RouteTradeSignal(context.Background(), "A", signal(1)); n != 1 {
		t.Fatalf("delivered=%d want 1", n)
	}
}

func TestRelationshipOps_UnknownPair(t *testing.T) {
	core, _ := newTestCore(t)

	if err := core.SetRelationshipEnabled(context.Background(), "A", "B", false); !errors.Is(err, ErrUnknownRelationship) {
		t.Fatalf("toggle: want ErrUnknownRelationship, got %v", err)
	}
	if err := core.DeleteRelationship(context.Background(), "A", "B"); !errors.Is(err, ErrUnknownRelationship) {
		t.Fatalf("delete: want ErrUnknownRelationship, got %v", err)
	}
}

func TestObserverWelcome_ContainsAllSnapshots(t *testing.T) {
	core, _ := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeBoth)
	registerActive(t, core, "B", protocol.AccountTypeBoth)
	link(t, core, "A", "B", 1.0, 5.0)
	core.RouteTradeSignal(context.Background(), "A", signal(1))

	payloads := core.ObserverWelcome()
	if len(payloads) != 3 {
		t.Fatalf("welcome payloads: %d want 3", len(payloads))
	}
	types := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &probe); err != nil {
			t.Fatalf("decode welcome payload: %v", err)
		}
		types = append(types, probe.Type)
	}
	want := []string{protocol.TypeAccountsList, protocol.TypeRelationshipsList, protocol.TypeCopyEventsList}
	for i, typ := range want {
		if types[i] != typ {
			t.Fatalf("welcome order: got %v want %v", types, want)
		}
	}
}

func TestCopyEventsSnapshot_LimitKeepsNewest(t *testing.T) {
	core, _ := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeProvider)
	registerActive(t, core, "B", protocol.AccountTypeCopyer)
	link(t, core, "A", "B", 1.0, 100)

	for i := 0; i < 5; i++ {
		core.RouteTradeSignal(context.Background(), "A", signal(float64(i+1)))
	}

	events := core.CopyEventsSnapshot(2).Events
	if len(events) != 2 {
		t.Fatalf("events: %d want 2", len(events))
	}
	if events[0].Trade.Volume != 4 || events[1].Trade.Volume != 5 {
		t.Fatalf("limit must keep the newest events: %+v", events)
	}
}

func TestLoadState_NilRepoIsNoop(t *testing.T) {
	core, _ := newTestCore(t)
	if err := core.LoadState(context.Background()); err != nil {
		t.Fatalf("load state without repo: %v", err)
	}
}
