package protocol

// Outbound envelopes. Every struct carries its literal type tag so a plain
// json.Marshal produces the wire envelope.

// AccountView is the wire shape of one account in accounts_list and
// account_registered / account_status events.
type AccountView struct {
	AccountID       string `json:"account_id"`
	Platform        string `json:"platform"`
	AccountType     string `json:"account_type"`
	DisplayName     string `json:"display_name"`
	ConnectionState string `json:"connection_state"`
	IsConnected     bool   `json:"is_connected"`
	LastHeartbeat   string `json:"last_heartbeat,omitempty"`
}

type RelationshipView struct {
	ProviderID       string  `json:"provider_id"`
	CopyerID         string  `json:"copyer_id"`
	VolumeMultiplier float64 `json:"volume_multiplier"`
	MaxLots          float64 `json:"max_lots"`
	Enabled          bool    `json:"enabled"`
}

type CopyEventView struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Trade     TradeData `json:"trade"`
	Timestamp string    `json:"timestamp"`
}

type AccountsListEvent struct {
	Type     string        `json:"type"`
	Accounts []AccountView `json:"accounts"`
}

type RelationshipsListEvent struct {
	Type          string             `json:"type"`
	Relationships []RelationshipView `json:"relationships"`
}

type CopyEventsListEvent struct {
	Type   string          `json:"type"`
	Events []CopyEventView `json:"events"`
}

type AccountRegisteredEvent struct {
	Type    string      `json:"type"`
	Account AccountView `json:"account"`
}

// AccountStatusEvent announces a connection-state transition to observers.
type AccountStatusEvent struct {
	Type            string `json:"type"`
	AccountID       string `json:"account_id"`
	ConnectionState string `json:"connection_state"`
	IsConnected     bool   `json:"is_connected"`
}

type TradeCopiedEvent struct {
	Type      string    `json:"type"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Trade     TradeData `json:"trade"`
	Timestamp string    `json:"timestamp"`
}

type ExecuteTradeEvent struct {
	Type  string    `json:"type"`
	Trade TradeData `json:"trade_data"`
}

type ErrorEvent struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func NewAccountsList(accounts []AccountView) AccountsListEvent {
	if accounts == nil {
		accounts = []AccountView{}
	}
	return AccountsListEvent{Type: TypeAccountsList, Accounts: accounts}
}

func NewRelationshipsList(relationships []RelationshipView) RelationshipsListEvent {
	if relationships == nil {
		relationships = []RelationshipView{}
	}
	return RelationshipsListEvent{Type: TypeRelationshipsList, Relationships: relationships}
}

func NewCopyEventsList(events []CopyEventView) CopyEventsListEvent {
	if events == nil {
		events = []CopyEventView{}
	}
	return CopyEventsListEvent{Type: TypeCopyEventsList, Events: events}
}

func NewAccountRegistered(account AccountView) AccountRegisteredEvent {
	return AccountRegisteredEvent{Type: TypeAccountRegistered, Account: account}
}

func NewAccountStatus(accountID, state string, connected bool) AccountStatusEvent {
	return AccountStatusEvent{
		Type:            TypeAccountStatus,
		AccountID:       accountID,
		ConnectionState: state,
		IsConnected:     connected,
	}
}

func NewTradeCopied(from, to string, trade TradeData, timestamp string) TradeCopiedEvent {
	return TradeCopiedEvent{
		Type:      TypeTradeCopied,
		From:      from,
		To:        to,
		Trade:     trade,
		Timestamp: timestamp,
	}
}

func NewExecuteTrade(trade TradeData) ExecuteTradeEvent {
	return ExecuteTradeEvent{Type: TypeExecuteTrade, Trade: trade}
}

func NewError(reason string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Reason: reason}
}
