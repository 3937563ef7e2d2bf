package protocol

import "time"

// Inbound message types.
const (
	TypeRegister               = "register"
	TypeHeartbeat              = "heartbeat"
	TypeTradeSignal            = "trade_signal"
	TypeGetAccounts            = "get_accounts"
	TypeGetRelationships       = "get_relationships"
	TypeGetCopyEvents          = "get_copy_events"
	TypeCreateRelationship     = "create_relationship"
	TypeSetRelationshipEnabled = "set_relationship_enabled"
	TypeDeleteRelationship     = "delete_relationship"
)

// Outbound message types.
const (
	TypeAccountsList      = "accounts_list"
	TypeRelationshipsList = "relationships_list"
	TypeCopyEventsList    = "copy_events_list"
	TypeAccountRegistered = "account_registered"
	TypeAccountStatus     = "account_status"
	TypeTradeCopied       = "trade_copied"
	TypeExecuteTrade      = "execute_trade"
	TypeError             = "error"
)

// Platform and account-type enums as they appear on the wire.
const (
	PlatformMT5     = "mt5"
	PlatformCTrader = "ctrader"
	PlatformOther   = "other"

	AccountTypeProvider = "provider"
	AccountTypeCopyer   = "copyer"
	AccountTypeBoth     = "both"

	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// TradeData is the nested trade payload shared by trade_signal and
// execute_trade. Field names match the platform adapters: sl and tp, not
// stop_loss and take_profit.
type TradeData struct {
	Symbol      string  `json:"symbol"`
	Action      string  `json:"action"`
	Volume      float64 `json:"volume"`
	Price       float64 `json:"price"`
	StopLoss    float64 `json:"sl"`
	TakeProfit  float64 `json:"tp"`
	Comment     string  `json:"comment"`
	MagicNumber int64   `json:"magic_number"`
	Timestamp   string  `json:"timestamp"`
}

// Message is one decoded inbound envelope. The set of implementations is
// closed: anything outside it is rejected at the decode boundary.
type Message interface {
	MessageType() string
}

type Register struct {
	AccountID   string `json:"account_id"`
	Platform    string `json:"platform"`
	AccountType string `json:"account_type"`
	DisplayName string `json:"display_name"`
}

type Heartbeat struct {
	AccountID string `json:"account_id"`
}

type TradeSignal struct {
	AccountID string    `json:"account_id"`
	Trade     TradeData `json:"trade_data"`
}

type GetAccounts struct{}

type GetRelationships struct{}

type GetCopyEvents struct {
	Limit int `json:"limit"`
}

type CreateRelationship struct {
	ProviderID       string   `json:"provider_id"`
	CopyerID         string   `json:"copyer_id"`
	VolumeMultiplier *float64 `json:"volume_multiplier"`
	MaxLots          *float64 `json:"max_lots"`
}

type SetRelationshipEnabled struct {
	ProviderID string `json:"provider_id"`
	CopyerID   string `json:"copyer_id"`
	Enabled    bool   `json:"enabled"`
}

type DeleteRelationship struct {
	ProviderID string `json:"provider_id"`
	CopyerID   string `json:"copyer_id"`
}

func (Register) MessageType() string               { return TypeRegister }
func (Heartbeat) MessageType() string              { return TypeHeartbeat }
func (TradeSignal) MessageType() string            { return TypeTradeSignal }
func (GetAccounts) MessageType() string            { return TypeGetAccounts }
func (GetRelationships) MessageType() string       { return TypeGetRelationships }
func (GetCopyEvents) MessageType() string          { return TypeGetCopyEvents }
func (CreateRelationship) MessageType() string     { return TypeCreateRelationship }
func (SetRelationshipEnabled) MessageType() string { return TypeSetRelationshipEnabled }
func (DeleteRelationship) MessageType() string     { return TypeDeleteRelationship }

// FormatTime renders the wire timestamp format: ISO-8601 UTC, second
// precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
