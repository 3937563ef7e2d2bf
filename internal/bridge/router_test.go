package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"tradebridge/internal/config"
	"tradebridge/internal/protocol"
)

type fakeSink struct {
	mu         sync.Mutex
	sent       map[string][][]byte
	broadcasts [][]byte
	reject     map[string]bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{sent: map[string][][]byte{}, reject: map[string]bool{}}
}

func (f *fakeSink) SendToAccount(accountID string, payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject[accountID] {
		return false
	}
	f.sent[accountID] = append(f.sent[accountID], payload)
	return true
}

func (f *fakeSink) BroadcastObservers(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, payload)
}

func (f *fakeSink) sentTo(accountID string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[accountID]
}

func (f *fakeSink) broadcastTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, payload := range f.broadcasts {
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &probe); err == nil {
			types = append(types, probe.Type)
		}
	}
	return types
}

func testConfig() config.BridgeConfig {
	return config.BridgeConfig{
		SweepInterval:   10 * time.Second,
		StaleAfter:      75 * time.Second,
		DisconnectAfter: 150 * time.Second,
		ConnectingGrace: 30 * time.Second,
		DefaultMaxLots:  100,
		OutboundQueue:   64,
		EventRing:       100,
	}
}

func newTestCore(t *testing.T) (*Core, *fakeSink) {
	t.Helper()
	sink := newFakeSink()
	return New(testConfig(), sink, nil, nil), sink
}

func registerActive(t *testing.T, c *Core, id, accType string) {
	t.Helper()
	ctx := context.Background()
	c.Register(ctx, protocol.Register{
		AccountID:   id,
		Platform:    protocol.PlatformMT5,
		AccountType: accType,
		DisplayName: id,
	})
	c.Heartbeat(ctx, id)
}

func floatPtr(f float64) *float64 {
	return &f
}

func link(t *testing.T, c *Core, provider, copyer string, multiplier, maxLots float64) {
	t.Helper()
	_, err := c.CreateRelationship(context.Background(), protocol.CreateRelationship{
		ProviderID:       provider,
		CopyerID:         copyer,
		VolumeMultiplier: floatPtr(multiplier),
		MaxLots:          floatPtr(maxLots),
	})
	if err != nil {
		t.Fatalf("create relationship %s->%s: %v", provider, copyer, err)
	}
}

func signal(volume float64) protocol.TradeData {
	return protocol.TradeData{
		Symbol: "EURUSD",
		Action: protocol.ActionBuy,
		Volume: volume,
		Price:  1.0852,
	}
}

func decodeExecute(t *testing.T, payload []byte) protocol.ExecuteTradeEvent {
	t.Helper()
	var event protocol.ExecuteTradeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("decode execute_trade: %v", err)
	}
	return event
}

func TestRoute_NoRelationshipsIsNoop(t *testing.T) {
	core, sink := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeProvider)

	if n := core.RouteTradeSignal(context.Background(), "A", signal(4)); n != 0 {
		t.Fatalf("delivered=%d want 0", n)
	}
	if len(sink.sent) != 0 {
		t.Fatalf("nothing should be sent: %v", sink.sent)
	}
}

func TestRoute_ScalesVolume(t *testing.T) {
	core, sink := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeProvider)
	registerActive(t, core, "B", protocol.AccountTypeCopyer)
	link(t, core, "A", "B", 0.5, 5.0)

	if n := core.RouteTradeSignal(context.Background(), "A", signal(4)); n != 1 {
		t.Fatalf("delivered=%d want 1", n)
	}
	payloads := sink.sentTo("B")
	if len(payloads) != 1 {
		t.Fatalf("payloads to B: %d", len(payloads))
	}
	event := decodeExecute(t, payloads[0])
	if event.Type != protocol.TypeExecuteTrade {
		t.Fatalf("type=%s", event.Type)
	}
	if event.Trade.Volume != 2.0 {
		t.Fatalf("volume=%v want 2.0", event.Trade.Volume)
	}
	if event.Trade.Comment != "Copy from A" {
		t.Fatalf("comment=%q", event.Trade.Comment)
	}
	if event.Trade.Symbol != "EURUSD" || event.Trade.Action != protocol.ActionBuy {
		t.Fatalf("passthrough fields lost: %+v", event.Trade)
	}
}

func TestRoute_ClampsToMaxLots(t *testing.T) {
	core, sink := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeProvider)
	registerActive(t, core, "B", protocol.AccountTypeCopyer)
	link(t, core, "A", "B", 2.0, 5.0)

	if n := core.RouteTradeSignal(context.Background(), "A", signal(4)); n != 1 {
		t.Fatalf("delivered=%d want 1", n)
	}
	event := decodeExecute(t, sink.sentTo("B")[0])
	if event.Trade.Volume != 5.0 {
		t.Fatalf("volume=%v want clamp to 5.0", event.Trade.Volume)
	}
}

func TestRoute_DisabledRelationshipExcluded(t *testing.T) {
	core, sink := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeProvider)
	registerActive(t, core, "B", protocol.AccountTypeCopyer)
	link(t, core, "A", "B", 0.5, 5.0)
	if err := core.SetRelationshipEnabled(context.Background(), "A", "B", false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	if n := core.RouteTradeSignal(context.Background(), "A", signal(4)); n != 0 {
		t.Fatalf("delivered=%d want 0", n)
	}
	if len(sink.sentTo("B")) != 0 {
		t.Fatalf("disabled relationship must not deliver")
	}
	if events := core.CopyEventsSnapshot(0).Events; len(events) != 0 {
		t.Fatalf("no copy events expected, got %d", len(events))
	}
}

func TestRoute_InactiveCopyerSkipped(t *testing.T) {
	core, sink := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeProvider)
	// B registers but never heartbeats, so it is Registered, not Active.
	core.Register(context.Background(), protocol.Register{
		AccountID:   "B",
		Platform:    protocol.PlatformCTrader,
		AccountType: protocol.AccountTypeCopyer,
	})
	link(t, core, "A", "B", 1.0, 5.0)

	if n := core.RouteTradeSignal(context.Background(), "A", signal(1)); n != 0 {
		t.Fatalf("delivered=%d want 0", n)
	}
	if len(sink.sentTo("B")) != 0 {
		t.Fatalf("inactive copyer must not receive trades")
	}
}

func TestRoute_CopyerOnlyCannotProvide(t *testing.T) {
	core, sink := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeCopyer)
	registerActive(t, core, "B", protocol.AccountTypeCopyer)
	link(t, core, "A", "B", 1.0, 5.0)

	if n := core.RouteTradeSignal(context.Background(), "A", signal(1)); n != 0 {
		t.Fatalf("copyer-only account must not route, delivered=%d", n)
	}
	if len(sink.sentTo("B")) != 0 {
		t.Fatalf("no delivery expected")
	}
}

func TestRoute_UnknownProviderIgnored(t *testing.T) {
	core, _ := newTestCore(t)
	if n := core.RouteTradeSignal(context.Background(), "ghost", signal(1)); n != 0 {
		t.Fatalf("unknown provider must be ignored, delivered=%d", n)
	}
}

func TestRoute_UnreachableCopyerRecordsNothing(t *testing.T) {
	core, sink := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeProvider)
	registerActive(t, core, "B", protocol.AccountTypeCopyer)
	link(t, core, "A", "B", 1.0, 5.0)
	sink.reject["B"] = true

	if n := core.RouteTradeSignal(context.Background(), "A", signal(1)); n != 0 {
		t.Fatalf("delivered=%d want 0", n)
	}
	if events := core.CopyEventsSnapshot(0).Events; len(events) != 0 {
		t.Fatalf("undelivered trade must not produce a copy event")
	}
}

func TestRoute_RecordsCopyEventAndNotifiesObservers(t *testing.T) {
	core, sink := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeBoth)
	registerActive(t, core, "B", protocol.AccountTypeBoth)
	link(t, core, "A", "B", 1.0, 5.0)

	core.RouteTradeSignal(context.Background(), "A", signal(2))

	events := core.CopyEventsSnapshot(0).Events
	if len(events) != 1 {
		t.Fatalf("copy events: %d want 1", len(events))
	}
	if events[0].From != "A" || events[0].To != "B" {
		t.Fatalf("event endpoints: %s -> %s", events[0].From, events[0].To)
	}
	found := false
	for _, typ := range sink.broadcastTypes() {
		if typ == protocol.TypeTradeCopied {
			found = true
		}
	}
	if !found {
		t.Fatalf("observers must see trade_copied, got %v", sink.broadcastTypes())
	}
}

func TestRoute_FanOutToMultipleCopyers(t *testing.T) {
	core, sink := newTestCore(t)
	registerActive(t, core, "A", protocol.AccountTypeProvider)
	registerActive(t, core, "B", protocol.AccountTypeCopyer)
	registerActive(t, core, "C", protocol.AccountTypeCopyer)
	link(t, core, "A", "B", 0.5, 5.0)
	link(t, core, "A", "C", 2.0, 3.0)

	if n := core.RouteTradeSignal(context.Background(), "A", signal(4)); n != 2 {
		t.Fatalf("delivered=%d want 2", n)
	}
	if v := decodeExecute(t, sink.sentTo("B")[0]).Trade.Volume; v != 2.0 {
		t.Fatalf("B volume=%v want 2.0", v)
	}
	if v := decodeExecute(t, sink.sentTo("C")[0]).Trade.Volume; v != 3.0 {
		t.Fatalf("C volume=%v want clamp to 3.0", v)
	}
}
