// Package relay moves committed outbox rows to Kafka. It is the second half
// of the transactional outbox: the store writes events in the payout's
// transaction, the relay publishes them after commit, so no audit event can
// exist for a state change that rolled back.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
)

type outboxRow struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
}

// Relay polls the outbox table and publishes pending rows to Kafka.
// Rows are locked with FOR UPDATE SKIP LOCKED so multiple relay instances
// never double-publish within one polling cycle.
type Relay struct {
	pool   *pgxpool.Pool
	client *kgo.Client
	topic  string
	logger *slog.Logger

	batchSize    int
	pollInterval time.Duration
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) { r.batchSize = n }
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) { r.pollInterval = d }
}

func New(pool *pgxpool.Pool, client *kgo.Client, topic string, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		pool:         pool,
		client:       client,
		topic:        topic,
		logger:       logger,
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until the context is cancelled. Publish errors are logged and the
// affected rows stay unpublished for the next cycle.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.publishBatch(ctx); err != nil {
				r.logger.WarnContext(ctx, "outbox publish cycle failed", "error", err)
			}
		}
	}
}

func (r *Relay) publishBatch(ctx context.Context) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batchSize)
	if err != nil {
		return fmt.Errorf("query outbox: %w", err)
	}

	batch, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outboxRow, error) {
		var o outboxRow
		err := row.Scan(&o.ID, &o.AggregateID, &o.EventType, &o.Payload)
		return o, err
	})
	if err != nil {
		return fmt.Errorf("scan outbox rows: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(batch))
	published := make([]string, 0, len(batch))
	for _, row := range batch {
		records = append(records, &kgo.Record{
			Topic: r.topic,
			// Key by aggregate so one payout's trail stays ordered within a partition.
			Key:   []byte(row.AggregateID),
			Value: row.Payload,
		})
		published = append(published, row.ID)
	}

	if err := r.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce outbox batch: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE outbox SET published_at = NOW() WHERE id = ANY($1)
	`, published); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit outbox tx: %w", err)
	}

	r.logger.DebugContext(ctx, "outbox batch published", "count", len(batch))
	return nil
}
