package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tradebridge/internal/protocol"
)

type statusChange struct {
	accountID string
	state     ConnState
}

// Sweep ages every connected account against the liveness thresholds:
// past StaleAfter the account turns Stale, past DisconnectAfter it is
// Disconnected. Accounts and relationships are never deleted here.
// Called on a fixed schedule by the cron runner.
func (c *Core) Sweep(ctx context.Context, now time.Time) (stale, disconnected int) {
	c.mu.Lock()
	var changes []statusChange
	for _, acc := range c.reg.list() {
		if !acc.State.Connected() {
			continue
		}
		ref := acc.LastHeartbeat
		if ref.IsZero() {
			ref = acc.RegisteredAt
		}
		age := now.Sub(ref)
		switch {
		case age > c.cfg.DisconnectAfter:
			acc.State = StateDisconnected
			disconnected++
			changes = append(changes, statusChange{accountID: acc.ID, state: StateDisconnected})
		case age > c.cfg.StaleAfter && acc.State != StateStale:
			acc.State = StateStale
			stale++
			changes = append(changes, statusChange{accountID: acc.ID, state: StateStale})
		}
	}
	c.mu.Unlock()

	for _, ch := range changes {
		c.logger.Info("liveness transition",
			zap.String("account", ch.accountID),
			zap.String("state", string(ch.state)),
		)
		c.broadcast(protocol.NewAccountStatus(ch.accountID, string(ch.state), ch.state.Connected()))
	}
	return stale, disconnected
}
