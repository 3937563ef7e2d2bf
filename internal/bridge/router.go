package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradebridge/internal/models"
	"tradebridge/internal/protocol"
)

type dispatch struct {
	copyerID string
	trade    protocol.TradeData
}

// RouteTradeSignal fans a provider's trade signal out to its enabled
// copyers, scaling and clamping each copy volume. Delivery is at-most-once:
// a copyer that is not currently Active is skipped, never queued. Returns
// the number of delivered instructions.
func (c *Core) RouteTradeSignal(ctx context.Context, providerID string, trade protocol.TradeData) int {
	now := time.Now().UTC()
	signalVolume := decimal.NewFromFloat(trade.Volume)

	c.mu.Lock()
	provider := c.reg.get(providerID)
	if provider == nil || !provider.CanProvide() {
		c.mu.Unlock()
		c.logger.Warn("trade signal from non-provider dropped",
			zap.String("account", providerID),
			zap.String("symbol", trade.Symbol),
		)
		return 0
	}
	// Snapshot relationships and copyer states in one critical section so
	// the route never observes a half-applied update.
	rels := c.graph.copyersOf(providerID)
	dispatches := make([]dispatch, 0, len(rels))
	for _, rel := range rels {
		copyer := c.reg.get(rel.CopyerID)
		if copyer == nil || !copyer.CanCopy() || copyer.State != StateActive {
			continue
		}
		volume := signalVolume.Mul(rel.VolumeMultiplier)
		if volume.GreaterThan(rel.MaxLots) {
			volume = rel.MaxLots
		}
		if !volume.IsPositive() {
			continue
		}
		out := trade
		out.Volume = volume.InexactFloat64()
		out.Comment = "Copy from " + providerID
		out.Timestamp = protocol.FormatTime(now)
		dispatches = append(dispatches, dispatch{copyerID: rel.CopyerID, trade: out})
	}
	c.mu.Unlock()

	c.logger.Info("trade signal",
		zap.String("provider", providerID),
		zap.String("symbol", trade.Symbol),
		zap.String("action", trade.Action),
		zap.Float64("volume", trade.Volume),
		zap.Int("targets", len(dispatches)),
	)

	delivered := 0
	for _, d := range dispatches {
		payload, err := json.Marshal(protocol.NewExecuteTrade(d.trade))
		if err != nil {
			c.logger.Warn("marshal execute_trade failed", zap.Error(err))
			continue
		}
		if c.sink == nil || !c.sink.SendToAccount(d.copyerID, payload) {
			c.logger.Warn("execute_trade dropped: copyer unreachable",
				zap.String("copyer", d.copyerID),
			)
			continue
		}
		delivered++
		c.recordCopy(ctx, providerID, d.copyerID, d.trade, now)
	}
	return delivered
}

// recordCopy appends the audit record and pushes trade_copied to observers.
func (c *Core) recordCopy(ctx context.Context, providerID, copyerID string, trade protocol.TradeData, at time.Time) {
	c.mu.Lock()
	c.ring.append(CopyEvent{
		ProviderID: providerID,
		CopyerID:   copyerID,
		Trade:      trade,
		At:         at,
	})
	c.mu.Unlock()

	if c.repo != nil {
		item := &models.CopyEvent{
			ProviderID: providerID,
			CopyerID:   copyerID,
			Symbol:     trade.Symbol,
			Action:     trade.Action,
			Volume:     trade.Volume,
			Price:      trade.Price,
		}
		if payload, err := json.Marshal(trade); err == nil {
			item.Trade = payload
		}
		if err := c.repo.InsertCopyEvent(ctx, item); err != nil {
			c.logger.Warn("persist copy event failed", zap.Error(err))
		}
	}

	c.broadcast(protocol.NewTradeCopied(providerID, copyerID, trade, protocol.FormatTime(at)))
}
