package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Party identifies a participant on the ledger by its well-known name.
type Party string

// RecordKind tags the on-ledger entity family a record belongs to.
type RecordKind string

const KindTrade RecordKind = "TRADE"

type TradeStatus string

const (
	StatusPending   TradeStatus = "PENDING"
	StatusCountered TradeStatus = "COUNTERED"
	StatusSettled   TradeStatus = "SETTLED"
	StatusRejected  TradeStatus = "REJECTED"
)

func (s TradeStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusCountered, StatusSettled, StatusRejected:
		return true
	default:
		return false
	}
}

// TradeRecord is one immutable on-ledger version of a trade. The LinearID is
// stable across versions; RecordID identifies this version. A record is never
// updated in place: a negotiation step consumes it and produces a successor
// carrying the same LinearID.
type TradeRecord struct {
	Kind     RecordKind `json:"kind"`
	RecordID uuid.UUID  `json:"record_id"`
	LinearID uuid.UUID  `json:"linear_id"`

	SellValue    int64  `json:"sell_value"`
	SellCurrency string `json:"sell_currency"`
	BuyValue     int64  `json:"buy_value"`
	BuyCurrency  string `json:"buy_currency"`

	InitiatingParty Party `json:"initiating_party"`
	CounterParty    Party `json:"counter_party"`
	Regulator       Party `json:"regulator"`

	Status    TradeStatus `json:"status"`
	UserID    string      `json:"user_id"`
	AssetCode string      `json:"asset_code"`
	OrderType string      `json:"order_type"`

	TransactionAmount int64 `json:"transaction_amount"`
	TransactionFees   int64 `json:"transaction_fees"`
	TransactionUnits  int64 `json:"transaction_units"`
}

// Participants returns the parties that hold a copy of this record.
func (r TradeRecord) Participants() []Party {
	return []Party{r.InitiatingParty, r.CounterParty, r.Regulator}
}

var errNegativeAmount = errors.New("amount must not be negative")

// Validate checks the structural invariants every on-ledger record must hold.
func (r TradeRecord) Validate() error {
	if r.Kind != KindTrade {
		return fmt.Errorf("unexpected record kind %q", r.Kind)
	}
	if r.RecordID == uuid.Nil || r.LinearID == uuid.Nil {
		return errors.New("record and linear ids are required")
	}
	for name, v := range map[string]int64{
		"sell_value":         r.SellValue,
		"buy_value":          r.BuyValue,
		"transaction_amount": r.TransactionAmount,
		"transaction_fees":   r.TransactionFees,
		"transaction_units":  r.TransactionUnits,
	} {
		if v < 0 {
			return fmt.Errorf("%s: %w", name, errNegativeAmount)
		}
	}
	if r.SellCurrency == "" || r.BuyCurrency == "" {
		return errors.New("currency codes are required")
	}
	if r.InitiatingParty == "" || r.CounterParty == "" {
		return errors.New("initiating and counter parties are required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("unknown trade status %q", r.Status)
	}
	return nil
}
