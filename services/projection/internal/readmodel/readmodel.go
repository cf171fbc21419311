package readmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotProjected: no committed record has been projected for the linear id.
var ErrNotProjected = errors.New("trade not found in read model")

// TradeRow mirrors the latest committed record per linear id. Denormalized,
// refreshed asynchronously, never authoritative.
type TradeRow struct {
	LinearID          string    `gorm:"primaryKey;column:linear_id;type:uuid" json:"linear_id"`
	RecordID          string    `gorm:"column:record_id;type:uuid;not null" json:"record_id"`
	SellValue         int64     `gorm:"column:sell_value;not null" json:"sell_value"`
	SellCurrency      string    `gorm:"column:sell_currency;type:varchar(10);not null" json:"sell_currency"`
	BuyValue          int64     `gorm:"column:buy_value;not null" json:"buy_value"`
	BuyCurrency       string    `gorm:"column:buy_currency;type:varchar(10);not null" json:"buy_currency"`
	InitiatingParty   string    `gorm:"column:initiating_party;type:varchar(255);not null" json:"initiating_party"`
	CounterParty      string    `gorm:"column:counter_party;type:varchar(255);not null" json:"counter_party"`
	Regulator         string    `gorm:"column:regulator;type:varchar(255)" json:"regulator"`
	Status            string    `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	UserID            string    `gorm:"column:user_id;type:varchar(255)" json:"user_id"`
	AssetCode         string    `gorm:"column:asset_code;type:varchar(50)" json:"asset_code"`
	OrderType         string    `gorm:"column:order_type;type:varchar(50)" json:"order_type"`
	TransactionAmount int64     `gorm:"column:transaction_amount" json:"transaction_amount"`
	TransactionFees   int64     `gorm:"column:transaction_fees" json:"transaction_fees"`
	TransactionUnits  int64     `gorm:"column:transaction_units" json:"transaction_units"`
	TransitionID      string    `gorm:"column:transition_id;type:varchar(80)" json:"transition_id"`
	CommittedAt       time.Time `gorm:"column:committed_at" json:"committed_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (TradeRow) TableName() string { return "trade_read_model" }

// Projector upserts read-model rows from commit events.
type Projector struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewProjector(db *gorm.DB, logger *logrus.Logger) *Projector {
	if logger == nil {
		logger = logrus.New()
	}
	return &Projector{db: db, logger: logger}
}

func (p *Projector) Migrate() error {
	return p.db.AutoMigrate(&TradeRow{})
}

// Apply upserts the row for the event's linear id. Events may arrive more
// than once; the upsert makes replay harmless.
func (p *Projector) Apply(ctx context.Context, row TradeRow) error {
	row.UpdatedAt = time.Now().UTC()
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "linear_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert read model row: %w", err)
	}
	p.logger.WithFields(logrus.Fields{
		"linear_id": row.LinearID,
		"status":    row.Status,
	}).Debug("read model updated")
	return nil
}

// Query serves point lookups with a cache-aside Redis layer. Concurrent
// misses on one linear id collapse into a single database read.
type Query struct {
	db    *gorm.DB
	cache *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

func NewQuery(db *gorm.DB, cache *redis.Client, ttl time.Duration) *Query {
	return &Query{db: db, cache: cache, ttl: ttl}
}

func cacheKey(linearID string) string { return "trade:latest:" + linearID }

func (q *Query) Latest(ctx context.Context, linearID string) (TradeRow, error) {
	if q.cache != nil {
		if cached, err := q.cache.Get(ctx, cacheKey(linearID)).Bytes(); err == nil {
			var row TradeRow
			if err := json.Unmarshal(cached, &row); err == nil {
				return row, nil
			}
		}
	}
	v, err, _ := q.group.Do(linearID, func() (any, error) {
		var row TradeRow
		err := q.db.WithContext(ctx).First(&row, "linear_id = ?", linearID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TradeRow{}, ErrNotProjected
		}
		if err != nil {
			return TradeRow{}, err
		}
		if q.cache != nil {
			if body, err := json.Marshal(row); err == nil {
				q.cache.Set(ctx, cacheKey(linearID), body, q.ttl)
			}
		}
		return row, nil
	})
	if err != nil {
		return TradeRow{}, err
	}
	return v.(TradeRow), nil
}

// Invalidate drops the cached row, called when a fresh commit supersedes it.
func (q *Query) Invalidate(ctx context.Context, linearID string) {
	if q.cache != nil {
		q.cache.Del(ctx, cacheKey(linearID))
	}
}
