package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradebridge/internal/config"
	"tradebridge/internal/models"
	"tradebridge/internal/protocol"
	"tradebridge/internal/repository"
)

var ErrUnknownRelationship = errors.New("relationship not found")

// Sink delivers outbound payloads. The server implements it on top of the
// per-connection write queues; both methods must be non-blocking.
type Sink interface {
	// SendToAccount enqueues a payload for the trading connection currently
	// bound to accountID. Returns false when no such connection exists or
	// its queue rejected the payload.
	SendToAccount(accountID string, payload []byte) bool
	// BroadcastObservers enqueues a payload for every observer connection.
	BroadcastObservers(payload []byte)
}

// Core owns all shared relay state: the account registry, the relationship
// graph, and the copy-event ring. Every mutation goes through its single
// mutex, so a route either sees a relationship or does not — never a
// half-applied update.
type Core struct {
	cfg    config.BridgeConfig
	logger *zap.Logger
	sink   Sink
	repo   repository.Repository

	mu    sync.Mutex
	reg   *registry
	graph *graph
	ring  *eventRing
}

func New(cfg config.BridgeConfig, sink Sink, repo repository.Repository, logger *zap.Logger) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Core{
		cfg:    cfg,
		logger: logger,
		sink:   sink,
		repo:   repo,
		reg:    newRegistry(),
		graph:  newGraph(),
		ring:   newEventRing(cfg.EventRing),
	}
}

// LoadState restores persisted accounts and relationships at startup.
// Restored accounts start Disconnected until their platform reconnects.
func (c *Core) LoadState(ctx context.Context) error {
	if c.repo == nil {
		return nil
	}
	accounts, err := c.repo.ListAccounts(ctx)
	if err != nil {
		return err
	}
	relationships, err := c.repo.ListRelationships(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range accounts {
		item := accounts[i]
		acc, _ := c.reg.upsert(item.AccountID, item.Platform, item.AccountType, item.DisplayName, item.CreatedAt)
		acc.State = StateDisconnected
		if item.LastHeartbeat != nil {
			acc.LastHeartbeat = *item.LastHeartbeat
		}
	}
	for i := range relationships {
		item := relationships[i]
		rel, _, err := c.graph.upsert(
			item.ProviderID,
			item.CopyerID,
			decimal.NewFromFloat(item.VolumeMultiplier),
			decimal.NewFromFloat(item.MaxLots),
		)
		if err != nil {
			c.logger.Warn("skipping persisted relationship",
				zap.String("provider", item.ProviderID),
				zap.String("copyer", item.CopyerID),
				zap.Error(err),
			)
			continue
		}
		rel.Enabled = item.Enabled
	}
	c.logger.Info("relay state restored",
		zap.Int("accounts", len(accounts)),
		zap.Int("relationships", len(relationships)),
	)
	return nil
}

// Register upserts the account and announces it to observers.
func (c *Core) Register(ctx context.Context, msg protocol.Register) protocol.AccountView {
	now := time.Now().UTC()

	c.mu.Lock()
	acc, created := c.reg.upsert(msg.AccountID, msg.Platform, msg.AccountType, msg.DisplayName, now)
	view := accountView(acc)
	snapshot := *acc
	c.mu.Unlock()

	if created {
		c.logger.Info("account registered",
			zap.String("account", msg.AccountID),
			zap.String("platform", msg.Platform),
			zap.String("account_type", msg.AccountType),
		)
	} else {
		c.logger.Info("account re-registered", zap.String("account", msg.AccountID))
	}

	c.persistAccount(ctx, &snapshot)
	c.broadcast(protocol.NewAccountRegistered(view))
	return view
}

// Heartbeat records liveness for the account; the first heartbeat after
// registration moves the connection to Active.
func (c *Core) Heartbeat(ctx context.Context, accountID string) {
	now := time.Now().UTC()

	c.mu.Lock()
	var before ConnState
	acc := c.reg.get(accountID)
	if acc != nil {
		before = acc.State
	}
	acc = c.reg.touch(accountID, now)
	var after ConnState
	if acc != nil {
		after = acc.State
	}
	c.mu.Unlock()

	if acc == nil {
		c.logger.Debug("heartbeat for unknown account", zap.String("account", accountID))
		return
	}
	if c.repo != nil {
		if err := c.repo.TouchAccountHeartbeat(ctx, accountID, now); err != nil {
			c.logger.Warn("persist heartbeat failed", zap.String("account", accountID), zap.Error(err))
		}
	}
	if before != after {
		c.broadcast(protocol.NewAccountStatus(accountID, string(after), after.Connected()))
	}
}

// MarkDisconnected flips the account to Disconnected on transport close.
// The account and its relationships survive for the next reconnect.
func (c *Core) MarkDisconnected(ctx context.Context, accountID string) {
	c.mu.Lock()
	acc := c.reg.markDisconnected(accountID)
	c.mu.Unlock()

	if acc == nil {
		return
	}
	c.logger.Info("account disconnected", zap.String("account", accountID))
	c.broadcast(protocol.NewAccountStatus(accountID, string(StateDisconnected), false))
}

// CreateRelationship adds or updates the provider -> copyer link. Either
// account may register later; only self-links are rejected.
func (c *Core) CreateRelationship(ctx context.Context, msg protocol.CreateRelationship) (protocol.RelationshipView, error) {
	multiplier := decimal.NewFromInt(1)
	if msg.VolumeMultiplier != nil {
		multiplier = decimal.NewFromFloat(*msg.VolumeMultiplier)
	}
	maxLots := decimal.NewFromFloat(c.cfg.DefaultMaxLots)
	if msg.MaxLots != nil {
		maxLots = decimal.NewFromFloat(*msg.MaxLots)
	}

	c.mu.Lock()
	rel, created, err := c.graph.upsert(msg.ProviderID, msg.CopyerID, multiplier, maxLots)
	var view protocol.RelationshipView
	if err == nil {
		view = relationshipView(rel)
	}
	c.mu.Unlock()

	if err != nil {
		return protocol.RelationshipView{}, err
	}
	c.logger.Info("relationship created",
		zap.String("provider", msg.ProviderID),
		zap.String("copyer", msg.CopyerID),
		zap.Float64("multiplier", view.VolumeMultiplier),
		zap.Float64("max_lots", view.MaxLots),
		zap.Bool("updated", !created),
	)
	c.persistRelationship(ctx, view)
	c.broadcast(c.RelationshipsSnapshot())
	return view, nil
}

// SetRelationshipEnabled toggles routing for an existing link.
func (c *Core) SetRelationshipEnabled(ctx context.Context, providerID, copyerID string, enabled bool) error {
	c.mu.Lock()
	rel := c.graph.setEnabled(providerID, copyerID, enabled)
	c.mu.Unlock()

	if rel == nil {
		return ErrUnknownRelationship
	}
	c.logger.Info("relationship toggled",
		zap.String("provider", providerID),
		zap.String("copyer", copyerID),
		zap.Bool("enabled", enabled),
	)
	if c.repo != nil {
		if err := c.repo.SetRelationshipEnabled(ctx, providerID, copyerID, enabled); err != nil {
			c.logger.Warn("persist relationship toggle failed", zap.Error(err))
		}
	}
	c.broadcast(c.RelationshipsSnapshot())
	return nil
}

// DeleteRelationship removes the link permanently.
func (c *Core) DeleteRelationship(ctx context.Context, providerID, copyerID string) error {
	c.mu.Lock()
	removed := c.graph.delete(providerID, copyerID)
	c.mu.Unlock()

	if !removed {
		return ErrUnknownRelationship
	}
	c.logger.Info("relationship deleted",
		zap.String("provider", providerID),
		zap.String("copyer", copyerID),
	)
	if c.repo != nil {
		if err := c.repo.DeleteRelationship(ctx, providerID, copyerID); err != nil {
			c.logger.Warn("persist relationship delete failed", zap.Error(err))
		}
	}
	c.broadcast(c.RelationshipsSnapshot())
	return nil
}

// AccountsSnapshot returns the accounts_list event for the current registry.
func (c *Core) AccountsSnapshot() protocol.AccountsListEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	accounts := c.reg.list()
	views := make([]protocol.AccountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, accountView(acc))
	}
	return protocol.NewAccountsList(views)
}

// RelationshipsSnapshot returns the relationships_list event.
func (c *Core) RelationshipsSnapshot() protocol.RelationshipsListEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relationshipsSnapshotLocked()
}

// CopyEventsSnapshot returns up to limit recent copy events, oldest first.
func (c *Core) CopyEventsSnapshot(limit int) protocol.CopyEventsListEvent {
	c.mu.Lock()
	events := c.ring.recent()
	c.mu.Unlock()

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	views := make([]protocol.CopyEventView, 0, len(events))
	for _, ev := range events {
		views = append(views, protocol.CopyEventView{
			From:      ev.ProviderID,
			To:        ev.CopyerID,
			Trade:     ev.Trade,
			Timestamp: protocol.FormatTime(ev.At),
		})
	}
	return protocol.NewCopyEventsList(views)
}

// ObserverWelcome builds the payloads sent to a newly connected observer:
// full account and relationship snapshots plus the recent copy events.
func (c *Core) ObserverWelcome() [][]byte {
	payloads := make([][]byte, 0, 3)
	for _, event := range []any{
		c.AccountsSnapshot(),
		c.RelationshipsSnapshot(),
		c.CopyEventsSnapshot(0),
	} {
		if data, err := json.Marshal(event); err == nil {
			payloads = append(payloads, data)
		}
	}
	return payloads
}

func (c *Core) relationshipsSnapshotLocked() protocol.RelationshipsListEvent {
	rels := c.graph.list()
	views := make([]protocol.RelationshipView, 0, len(rels))
	for _, rel := range rels {
		views = append(views, relationshipView(rel))
	}
	return protocol.NewRelationshipsList(views)
}

func (c *Core) broadcast(event any) {
	if c.sink == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Warn("marshal observer event failed", zap.Error(err))
		return
	}
	c.sink.BroadcastObservers(data)
}

func (c *Core) persistAccount(ctx context.Context, acc *Account) {
	if c.repo == nil {
		return
	}
	item := &models.Account{
		AccountID:   acc.ID,
		Platform:    acc.Platform,
		AccountType: acc.Type,
		DisplayName: acc.DisplayName,
	}
	if !acc.LastHeartbeat.IsZero() {
		hb := acc.LastHeartbeat
		item.LastHeartbeat = &hb
	}
	if err := c.repo.UpsertAccount(ctx, item); err != nil {
		c.logger.Warn("persist account failed", zap.String("account", acc.ID), zap.Error(err))
	}
}

func (c *Core) persistRelationship(ctx context.Context, view protocol.RelationshipView) {
	if c.repo == nil {
		return
	}
	item := &models.Relationship{
		ProviderID:       view.ProviderID,
		CopyerID:         view.CopyerID,
		VolumeMultiplier: view.VolumeMultiplier,
		MaxLots:          view.MaxLots,
		Enabled:          view.Enabled,
	}
	if err := c.repo.UpsertRelationship(ctx, item); err != nil {
		c.logger.Warn("persist relationship failed", zap.Error(err))
	}
}

func accountView(acc *Account) protocol.AccountView {
	view := protocol.AccountView{
		AccountID:       acc.ID,
		Platform:        acc.Platform,
		AccountType:     acc.Type,
		DisplayName:     acc.DisplayName,
		ConnectionState: string(acc.State),
		IsConnected:     acc.State.Connected(),
	}
	if !acc.LastHeartbeat.IsZero() {
		view.LastHeartbeat = protocol.FormatTime(acc.LastHeartbeat)
	}
	return view
}

func relationshipView(rel *Relationship) protocol.RelationshipView {
	return protocol.RelationshipView{
		ProviderID:       rel.ProviderID,
		CopyerID:         rel.CopyerID,
		VolumeMultiplier: rel.VolumeMultiplier.InexactFloat64(),
		MaxLots:          rel.MaxLots.InexactFloat64(),
		Enabled:          rel.Enabled,
	}
}
