package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType marks an envelope whose type is outside the recognized set.
// Callers log and ignore these; unknown types are never fatal.
var ErrUnknownType = errors.New("unknown message type")

// ValidationError reports a recognized envelope that is missing or carrying
// a malformed required field.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Decode parses one inbound envelope and validates its required fields.
func Decode(data []byte) (Message, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, invalidf("malformed json: %v", err)
	}
	kind := strings.TrimSpace(probe.Type)
	if kind == "" {
		return nil, invalidf("missing type field")
	}

	switch kind {
	case TypeRegister:
		var msg Register
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, invalidf("malformed register: %v", err)
		}
		if err := validateRegister(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeHeartbeat:
		var msg Heartbeat
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, invalidf("malformed heartbeat: %v", err)
		}
		if strings.TrimSpace(msg.AccountID) == "" {
			return nil, invalidf("heartbeat requires account_id")
		}
		return msg, nil
	case TypeTradeSignal:
		var msg TradeSignal
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, invalidf("malformed trade_signal: %v", err)
		}
		if err := validateTradeSignal(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeGetAccounts:
		return GetAccounts{}, nil
	case TypeGetRelationships:
		return GetRelationships{}, nil
	case TypeGetCopyEvents:
		var msg GetCopyEvents
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, invalidf("malformed get_copy_events: %v", err)
		}
		return msg, nil
	case TypeCreateRelationship:
		var msg CreateRelationship
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, invalidf("malformed create_relationship: %v", err)
		}
		if strings.TrimSpace(msg.ProviderID) == "" || strings.TrimSpace(msg.CopyerID) == "" {
			return nil, invalidf("create_relationship requires provider_id and copyer_id")
		}
		if msg.VolumeMultiplier != nil && *msg.VolumeMultiplier <= 0 {
			return nil, invalidf("volume_multiplier must be positive")
		}
		if msg.MaxLots != nil && *msg.MaxLots <= 0 {
			return nil, invalidf("max_lots must be positive")
		}
		return msg, nil
	case TypeSetRelationshipEnabled:
		var msg SetRelationshipEnabled
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, invalidf("malformed set_relationship_enabled: %v", err)
		}
		if strings.TrimSpace(msg.ProviderID) == "" || strings.TrimSpace(msg.CopyerID) == "" {
			return nil, invalidf("set_relationship_enabled requires provider_id and copyer_id")
		}
		return msg, nil
	case TypeDeleteRelationship:
		var msg DeleteRelationship
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, invalidf("malformed delete_relationship: %v", err)
		}
		if strings.TrimSpace(msg.ProviderID) == "" || strings.TrimSpace(msg.CopyerID) == "" {
			return nil, invalidf("delete_relationship requires provider_id and copyer_id")
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, kind)
	}
}

func validateRegister(msg Register) error {
	if strings.TrimSpace(msg.AccountID) == "" {
		return invalidf("register requires account_id")
	}
	switch msg.Platform {
	case PlatformMT5, PlatformCTrader, PlatformOther:
	default:
		return invalidf("unknown platform: %s", msg.Platform)
	}
	switch msg.AccountType {
	case AccountTypeProvider, AccountTypeCopyer, AccountTypeBoth:
	default:
		return invalidf("unknown account_type: %s", msg.AccountType)
	}
	return nil
}

func validateTradeSignal(msg TradeSignal) error {
	if strings.TrimSpace(msg.AccountID) == "" {
		return invalidf("trade_signal requires account_id")
	}
	if strings.TrimSpace(msg.Trade.Symbol) == "" {
		return invalidf("trade_signal requires trade_data.symbol")
	}
	if msg.Trade.Action != ActionBuy && msg.Trade.Action != ActionSell {
		return invalidf("trade_data.action must be BUY or SELL")
	}
	if msg.Trade.Volume <= 0 {
		return invalidf("trade_data.volume must be positive")
	}
	return nil
}
