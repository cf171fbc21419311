package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"tradelane/pkg/domain"
	"tradelane/services/projection/internal/readmodel"
)

// Consumer subscribes to the notary's commit exchange and forwards events
// into the read-model projector.
type Consumer struct {
	url       string
	exchange  string
	projector *readmodel.Projector
	query     *readmodel.Query
	logger    *logrus.Logger

	conn *amqp.Connection
	ch   *amqp.Channel
}

func New(url, exchange string, projector *readmodel.Projector, query *readmodel.Query, logger *logrus.Logger) *Consumer {
	return &Consumer{url: url, exchange: exchange, projector: projector, query: query, logger: logger}
}

// Start connects, binds an exclusive queue to the fanout exchange and
// consumes until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	c.conn = conn
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	c.ch = ch

	if err := ch.ExchangeDeclare(c.exchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", c.exchange, err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consume: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("commit event channel closed")
					return
				}
				c.handle(ctx, msg.Body)
			}
		}
	}()
	return nil
}

func (c *Consumer) handle(ctx context.Context, body []byte) {
	var ev domain.TradeCommitted
	if err := json.Unmarshal(body, &ev); err != nil {
		c.logger.WithError(err).Warn("dropping malformed commit event")
		return
	}
	row := rowFromEvent(ev)
	if err := c.projector.Apply(ctx, row); err != nil {
		c.logger.WithError(err).WithField("linear_id", row.LinearID).Error("projection apply failed")
		return
	}
	c.query.Invalidate(ctx, row.LinearID)
}

func rowFromEvent(ev domain.TradeCommitted) readmodel.TradeRow {
	r := ev.Record
	return readmodel.TradeRow{
		LinearID:          r.LinearID.String(),
		RecordID:          r.RecordID.String(),
		SellValue:         r.SellValue,
		SellCurrency:      r.SellCurrency,
		BuyValue:          r.BuyValue,
		BuyCurrency:       r.BuyCurrency,
		InitiatingParty:   string(r.InitiatingParty),
		CounterParty:      string(r.CounterParty),
		Regulator:         string(r.Regulator),
		Status:            string(r.Status),
		UserID:            r.UserID,
		AssetCode:         r.AssetCode,
		OrderType:         r.OrderType,
		TransactionAmount: r.TransactionAmount,
		TransactionFees:   r.TransactionFees,
		TransactionUnits:  r.TransactionUnits,
		TransitionID:      ev.TransitionID,
		CommittedAt:       ev.CommittedAt,
	}
}

func (c *Consumer) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
