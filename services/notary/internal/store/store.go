package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradelane/pkg/domain"
)

// Schema creates the ledger tables. trade_records keeps every version ever
// notarized; consumption flips the consumed flag, never deletes.
const Schema = `
CREATE TABLE IF NOT EXISTS trade_records (
	record_id          UUID PRIMARY KEY,
	linear_id          UUID NOT NULL,
	sell_value         BIGINT NOT NULL,
	sell_currency      TEXT NOT NULL,
	buy_value          BIGINT NOT NULL,
	buy_currency       TEXT NOT NULL,
	initiating_party   TEXT NOT NULL,
	counter_party      TEXT NOT NULL,
	regulator          TEXT NOT NULL,
	status             TEXT NOT NULL,
	user_id            TEXT NOT NULL,
	asset_code         TEXT NOT NULL,
	order_type         TEXT NOT NULL,
	transaction_amount BIGINT NOT NULL,
	transaction_fees   BIGINT NOT NULL,
	transaction_units  BIGINT NOT NULL,
	consumed           BOOLEAN NOT NULL DEFAULT false,
	consumed_by        TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS trade_records_one_unconsumed
	ON trade_records (linear_id) WHERE NOT consumed;

CREATE TABLE IF NOT EXISTS notarized_transitions (
	transition_id TEXT PRIMARY KEY,
	action        TEXT NOT NULL,
	input_record  UUID NOT NULL,
	output_record UUID NOT NULL,
	notarized_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) Init(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, Schema)
	return err
}

const recordColumns = `record_id, linear_id, sell_value, sell_currency, buy_value, buy_currency,
initiating_party, counter_party, regulator, status, user_id, asset_code, order_type,
transaction_amount, transaction_fees, transaction_units`

// FindUnconsumed returns the current unconsumed record of linearID. An empty
// status matches any status.
func (s *Store) FindUnconsumed(ctx context.Context, linearID uuid.UUID, status domain.TradeStatus) (domain.TradeRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM trade_records WHERE linear_id=$1 AND NOT consumed`
	args := []any{linearID}
	if status != "" {
		query += ` AND status=$2`
		args = append(args, string(status))
	}
	rec, err := scanRecord(s.DB.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TradeRecord{}, domain.ErrNotFound
		}
		return domain.TradeRecord{}, err
	}
	return rec, nil
}

// InsertGenesis registers an issuance: a new unconsumed record that consumes
// nothing. The partial unique index rejects a second unconsumed record for
// the same linear id.
func (s *Store) InsertGenesis(ctx context.Context, rec domain.TradeRecord) error {
	_, err := s.DB.Exec(ctx, insertRecordSQL, recordArgs(rec)...)
	return err
}

// ConsumeAndRecord is the atomic check-and-commit: in one transaction it
// marks the input consumed iff it is still unconsumed, then inserts the
// output. A replayed transition id returns already=true without touching
// state; a consumed input returns domain.ErrConflict.
func (s *Store) ConsumeAndRecord(ctx context.Context, transitionID string, action domain.ActionTag, input, output domain.TradeRecord) (already bool, err error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var seen int
	err = tx.QueryRow(ctx, `SELECT count(*) FROM notarized_transitions WHERE transition_id=$1`, transitionID).Scan(&seen)
	if err != nil {
		return false, err
	}
	if seen > 0 {
		return true, nil
	}

	tag, err := tx.Exec(ctx, `UPDATE trade_records SET consumed=true, consumed_by=$1 WHERE record_id=$2 AND NOT consumed`,
		transitionID, input.RecordID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, fmt.Errorf("record %s: %w", input.RecordID, domain.ErrConflict)
	}

	if _, err := tx.Exec(ctx, insertRecordSQL, recordArgs(output)...); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO notarized_transitions(transition_id,action,input_record,output_record)
VALUES($1,$2,$3,$4)`, transitionID, string(action), input.RecordID, output.RecordID); err != nil {
		return false, err
	}
	return false, tx.Commit(ctx)
}

const insertRecordSQL = `INSERT INTO trade_records(` + recordColumns + `)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

func recordArgs(r domain.TradeRecord) []any {
	return []any{
		r.RecordID, r.LinearID, r.SellValue, r.SellCurrency, r.BuyValue, r.BuyCurrency,
		string(r.InitiatingParty), string(r.CounterParty), string(r.Regulator), string(r.Status),
		r.UserID, r.AssetCode, r.OrderType,
		r.TransactionAmount, r.TransactionFees, r.TransactionUnits,
	}
}

func scanRecord(row pgx.Row) (domain.TradeRecord, error) {
	var r domain.TradeRecord
	var initiating, counter, regulator, status string
	err := row.Scan(&r.RecordID, &r.LinearID, &r.SellValue, &r.SellCurrency, &r.BuyValue, &r.BuyCurrency,
		&initiating, &counter, &regulator, &status, &r.UserID, &r.AssetCode, &r.OrderType,
		&r.TransactionAmount, &r.TransactionFees, &r.TransactionUnits)
	if err != nil {
		return domain.TradeRecord{}, err
	}
	r.Kind = domain.KindTrade
	r.InitiatingParty = domain.Party(initiating)
	r.CounterParty = domain.Party(counter)
	r.Regulator = domain.Party(regulator)
	r.Status = domain.TradeStatus(status)
	return r, nil
}
