package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"tradebridge/internal/bridge"
	"tradebridge/internal/config"
	"tradebridge/internal/protocol"
)

// Server hosts the two WebSocket endpoints: /trading for platform adapters
// and /gui for observers. It implements bridge.Sink on top of the
// per-connection outbound queues.
type Server struct {
	cfg    config.BridgeConfig
	logger *zap.Logger
	core   *bridge.Core

	nextID uint64

	mu        sync.Mutex
	trading   map[string]*conn
	observers map[*conn]struct{}
}

func New(cfg config.BridgeConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		trading:   map[string]*conn{},
		observers: map[*conn]struct{}{},
	}
}

// AttachCore wires the relay core after construction; the core needs the
// server as its sink, so the two are built in sequence.
func (s *Server) AttachCore(core *bridge.Core) {
	s.core = core
}

func (s *Server) Register(r *gin.Engine) {
	r.GET("/trading", s.handleTrading)
	r.GET("/gui", s.handleObserver)
}

// --- bridge.Sink ------------------------------------------------------------

func (s *Server) SendToAccount(accountID string, payload []byte) bool {
	s.mu.Lock()
	cn := s.trading[accountID]
	s.mu.Unlock()
	if cn == nil {
		return false
	}
	return cn.enqueue(payload)
}

func (s *Server) BroadcastObservers(payload []byte) {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.observers))
	for cn := range s.observers {
		conns = append(conns, cn)
	}
	s.mu.Unlock()

	for _, cn := range conns {
		cn.enqueue(payload)
	}
}

// --- endpoints --------------------------------------------------------------

func (s *Server) handleTrading(g *gin.Context) {
	cn, ctx, ok := s.accept(g)
	if !ok {
		return
	}

	// Drop connections that never register.
	grace := time.AfterFunc(s.cfg.ConnectingGrace, func() {
		if cn.boundAccount() == "" {
			s.logger.Info("dropping unregistered connection", zap.Uint64("conn", cn.id))
			cn.close(websocket.StatusPolicyViolation, "register timeout")
		}
	})
	defer grace.Stop()

	s.logger.Info("trading connection opened", zap.Uint64("conn", cn.id))
	s.readLoop(ctx, cn, s.dispatchTrading)

	s.releaseTrading(cn)
	cn.close(websocket.StatusNormalClosure, "bye")
	s.logger.Info("trading connection closed",
		zap.Uint64("conn", cn.id),
		zap.Uint64("dropped", cn.queue.droppedCount()),
	)
}

func (s *Server) handleObserver(g *gin.Context) {
	cn, ctx, ok := s.accept(g)
	if !ok {
		return
	}

	s.mu.Lock()
	s.observers[cn] = struct{}{}
	s.mu.Unlock()

	// Full snapshot on connect: accounts, relationships, recent copies.
	for _, payload := range s.core.ObserverWelcome() {
		cn.enqueue(payload)
	}

	s.logger.Info("observer connected", zap.Uint64("conn", cn.id))
	s.readLoop(ctx, cn, s.dispatchObserver)

	s.mu.Lock()
	delete(s.observers, cn)
	s.mu.Unlock()
	cn.close(websocket.StatusNormalClosure, "bye")
	s.logger.Info("observer disconnected",
		zap.Uint64("conn", cn.id),
		zap.Uint64("dropped", cn.queue.droppedCount()),
	)
}

func (s *Server) accept(g *gin.Context) (*conn, context.Context, bool) {
	ws, err := websocket.Accept(g.Writer, g.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return nil, nil, false
	}
	if s.cfg.ReadLimit > 0 {
		ws.SetReadLimit(s.cfg.ReadLimit)
	}

	ctx, cancel := context.WithCancel(g.Request.Context())
	cn := newConn(atomic.AddUint64(&s.nextID, 1), ws, s.cfg.OutboundQueue, cancel, s.logger)
	go cn.writeLoop(ctx)
	return cn, ctx, true
}

type dispatchFunc func(ctx context.Context, cn *conn, msg protocol.Message)

// readLoop feeds inbound frames through the codec. Protocol errors never
// close the connection; only transport errors end the loop.
func (s *Server) readLoop(ctx context.Context, cn *conn, dispatch dispatchFunc) {
	for {
		_, data, err := cn.ws.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("read ended", zap.Uint64("conn", cn.id), zap.Error(err))
			}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownType) {
				s.logger.Debug("ignoring unknown message type", zap.Uint64("conn", cn.id), zap.Error(err))
				continue
			}
			s.logger.Warn("rejected envelope", zap.Uint64("conn", cn.id), zap.Error(err))
			s.reply(cn, protocol.NewError(err.Error()))
			continue
		}
		dispatch(ctx, cn, msg)
	}
}

// dispatchTrading handles platform-adapter messages. Relationship queries
// are answered here too for adapters that want to inspect their links.
func (s *Server) dispatchTrading(ctx context.Context, cn *conn, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Register:
		s.bindTrading(ctx, cn, m.AccountID)
		s.core.Register(ctx, m)
	case protocol.Heartbeat:
		s.core.Heartbeat(ctx, m.AccountID)
	case protocol.TradeSignal:
		s.core.RouteTradeSignal(ctx, m.AccountID, m.Trade)
	case protocol.GetAccounts:
		s.reply(cn, s.core.AccountsSnapshot())
	case protocol.GetRelationships:
		s.reply(cn, s.core.RelationshipsSnapshot())
	default:
		s.logger.Debug("message not valid on trading endpoint",
			zap.Uint64("conn", cn.id),
			zap.String("type", msg.MessageType()),
		)
	}
}

// dispatchObserver handles dashboard messages: snapshot queries and
// relationship management. Observers are never routing targets.
func (s *Server) dispatchObserver(ctx context.Context, cn *conn, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.GetAccounts:
		s.reply(cn, s.core.AccountsSnapshot())
	case protocol.GetRelationships:
		s.reply(cn, s.core.RelationshipsSnapshot())
	case protocol.GetCopyEvents:
		s.reply(cn, s.core.CopyEventsSnapshot(m.Limit))
	case protocol.CreateRelationship:
		if _, err := s.core.CreateRelationship(ctx, m); err != nil {
			s.reply(cn, protocol.NewError(err.Error()))
		}
	case protocol.SetRelationshipEnabled:
		if err := s.core.SetRelationshipEnabled(ctx, m.ProviderID, m.CopyerID, m.Enabled); err != nil {
			s.reply(cn, protocol.NewError(err.Error()))
		}
	case protocol.DeleteRelationship:
		if err := s.core.DeleteRelationship(ctx, m.ProviderID, m.CopyerID); err != nil {
			s.reply(cn, protocol.NewError(err.Error()))
		}
	default:
		s.logger.Debug("message not valid on observer endpoint",
			zap.Uint64("conn", cn.id),
			zap.String("type", msg.MessageType()),
		)
	}
}

// releaseTrading runs the disconnect path for a trading connection that is
// leaving. A connection superseded by a reconnect no longer owns its account
// binding, and must not flip the freshly registered account to Disconnected;
// only the current owner does disconnect bookkeeping.
func (s *Server) releaseTrading(cn *conn) {
	accountID := cn.boundAccount()
	if accountID == "" {
		return
	}

	s.mu.Lock()
	wasCurrent := s.trading[accountID] == cn
	if wasCurrent {
		delete(s.trading, accountID)
	}
	s.mu.Unlock()

	if !wasCurrent {
		return
	}
	// The request context is gone by now; disconnect bookkeeping still
	// has to run.
	s.core.MarkDisconnected(context.Background(), accountID)
}

// bindTrading routes future execute_trade payloads for accountID to cn. A
// reconnect supersedes the previous transport for the same account; a second
// register with a different id on the same transport releases the first.
func (s *Server) bindTrading(ctx context.Context, cn *conn, accountID string) {
	prev := cn.boundAccount()
	cn.bindAccount(accountID)

	s.mu.Lock()
	rebound := prev != "" && prev != accountID && s.trading[prev] == cn
	if rebound {
		delete(s.trading, prev)
	}
	old := s.trading[accountID]
	s.trading[accountID] = cn
	s.mu.Unlock()

	if rebound {
		s.logger.Info("connection rebound to new account",
			zap.String("previous", prev),
			zap.String("account", accountID),
			zap.Uint64("conn", cn.id),
		)
		s.core.MarkDisconnected(ctx, prev)
	}
	if old != nil && old != cn {
		s.logger.Info("superseding stale connection for account",
			zap.String("account", accountID),
			zap.Uint64("old_conn", old.id),
			zap.Uint64("new_conn", cn.id),
		)
		old.close(websocket.StatusPolicyViolation, "superseded by reconnect")
	}
}

func (s *Server) reply(cn *conn, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("marshal reply failed", zap.Error(err))
		return
	}
	cn.enqueue(payload)
}

// LogStats reports connection and drop counters; scheduled via cron.
func (s *Server) LogStats() {
	s.mu.Lock()
	tradingCount := len(s.trading)
	observerCount := len(s.observers)
	var dropped uint64
	for _, cn := range s.trading {
		dropped += cn.queue.droppedCount()
	}
	for cn := range s.observers {
		dropped += cn.queue.droppedCount()
	}
	s.mu.Unlock()

	s.logger.Info("bridge connections",
		zap.Int("trading", tradingCount),
		zap.Int("observers", observerCount),
		zap.Uint64("dropped_outbound", dropped),
	)
}
