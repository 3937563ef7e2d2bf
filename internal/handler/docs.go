package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# Trade Bridge

Central relay that copies trade signals from provider accounts to their
linked copyer accounts, with per-relationship volume scaling and caps.

## WebSocket endpoints

- /trading — platform adapters (MT5 EA, cTrader cBot). Send register,
  heartbeat, trade_signal; receive execute_trade.
- /gui — dashboards. Send get_accounts, get_relationships, get_copy_events,
  create_relationship, set_relationship_enabled, delete_relationship;
  receive snapshots plus account_registered, account_status, trade_copied.

Messages are flat JSON envelopes with a "type" field. Trade payloads travel
in a nested "trade_data" object (symbol, action, volume, price, sl, tp,
comment, magic_number, timestamp).

## REST

- GET /healthz, GET /readyz
- GET /api/accounts
- GET /api/relationships
- POST /api/relationships
- POST /api/relationships/enabled
- DELETE /api/relationships?provider_id=&copyer_id=
- GET /api/copy-events?provider_id=&copyer_id=&since=&limit=&offset=

## Contract notes

- Clients heartbeat every 30s; the relay marks accounts stale and then
  disconnected when heartbeats stop.
- Delivery is at-most-once: a disconnected copyer misses the trade, there
  is no replay queue.
`)
	})
}
