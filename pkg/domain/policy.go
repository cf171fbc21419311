package domain

// Field names a TradeRecord attribute in per-action mutability policies.
type Field string

const (
	FieldStatus            Field = "status"
	FieldSellValue         Field = "sell_value"
	FieldSellCurrency      Field = "sell_currency"
	FieldBuyValue          Field = "buy_value"
	FieldBuyCurrency       Field = "buy_currency"
	FieldInitiatingParty   Field = "initiating_party"
	FieldCounterParty      Field = "counter_party"
	FieldRegulator         Field = "regulator"
	FieldUserID            Field = "user_id"
	FieldAssetCode         Field = "asset_code"
	FieldOrderType         Field = "order_type"
	FieldTransactionAmount Field = "transaction_amount"
	FieldTransactionFees   Field = "transaction_fees"
	FieldTransactionUnits  Field = "transaction_units"
)

// ActionPolicy declares, per action tag, which prior status a transition may
// consume, which status its output carries, and which fields the proposer may
// change. Every field absent from Mutable must be carried over bit-identical.
type ActionPolicy struct {
	Precondition TradeStatus
	Outcome      TradeStatus
	Mutable      map[Field]bool
}

var actionPolicies = map[ActionTag]ActionPolicy{
	ActionCounterTrade: {
		Precondition: StatusPending,
		Outcome:      StatusCountered,
		Mutable: map[Field]bool{
			FieldStatus:       true,
			FieldSellValue:    true,
			FieldSellCurrency: true,
			FieldBuyValue:     true,
			FieldBuyCurrency:  true,
		},
	},
	ActionSettleTrade: {
		Precondition: StatusCountered,
		Outcome:      StatusSettled,
		Mutable: map[Field]bool{
			FieldStatus:            true,
			FieldTransactionAmount: true,
			FieldTransactionFees:   true,
			FieldTransactionUnits:  true,
		},
	},
}

// PolicyFor returns the transition policy for an action tag. Issuance has no
// policy: it consumes nothing and is registered directly with the notary.
func PolicyFor(action ActionTag) (ActionPolicy, bool) {
	p, ok := actionPolicies[action]
	return p, ok
}

// FieldValue extracts the policy-addressable value of a field from a record.
func FieldValue(r TradeRecord, f Field) any {
	switch f {
	case FieldStatus:
		return r.Status
	case FieldSellValue:
		return r.SellValue
	case FieldSellCurrency:
		return r.SellCurrency
	case FieldBuyValue:
		return r.BuyValue
	case FieldBuyCurrency:
		return r.BuyCurrency
	case FieldInitiatingParty:
		return r.InitiatingParty
	case FieldCounterParty:
		return r.CounterParty
	case FieldRegulator:
		return r.Regulator
	case FieldUserID:
		return r.UserID
	case FieldAssetCode:
		return r.AssetCode
	case FieldOrderType:
		return r.OrderType
	case FieldTransactionAmount:
		return r.TransactionAmount
	case FieldTransactionFees:
		return r.TransactionFees
	case FieldTransactionUnits:
		return r.TransactionUnits
	default:
		return nil
	}
}

// AllFields lists every policy-addressable field in a fixed order.
var AllFields = []Field{
	FieldStatus,
	FieldSellValue,
	FieldSellCurrency,
	FieldBuyValue,
	FieldBuyCurrency,
	FieldInitiatingParty,
	FieldCounterParty,
	FieldRegulator,
	FieldUserID,
	FieldAssetCode,
	FieldOrderType,
	FieldTransactionAmount,
	FieldTransactionFees,
	FieldTransactionUnits,
}
