package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"masjid-feed/internal/domain"
	"masjid-feed/internal/infra/metrics"
)

// Postgres хранит зеркало живых лент в таблице feed_items.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.FeedMirror = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS feed_items (
    context     TEXT        NOT NULL,
    id          BIGINT      NOT NULL,
    kind        TEXT        NOT NULL DEFAULT '',
    event_at    TIMESTAMPTZ NULL,
    payload     JSONB       NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (context, id)
);
CREATE INDEX IF NOT EXISTS feed_items_event_at_idx ON feed_items (event_at) WHERE event_at IS NOT NULL;
`

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицу зеркала, если её нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, schema)
	metrics.ObserveNetworkRequest("postgres", "feed_items_schema", "feed_items", start, err)
	if err != nil {
		return fmt.Errorf("создание схемы feed_items: %w", err)
	}
	return nil
}

// UpsertFeedItems сохраняет записи батчем.
func (p *Postgres) UpsertFeedItems(ctx context.Context, feedContext string, items []domain.FeedItem) error {
	if len(items) == 0 {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal item %d: %w", item.ID, err)
		}
		batch.Queue(`
INSERT INTO feed_items (context, id, kind, event_at, payload, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (context, id) DO UPDATE SET kind=EXCLUDED.kind, event_at=EXCLUDED.event_at, payload=EXCLUDED.payload, updated_at=now()
`, feedContext, item.ID, string(item.Kind), item.EventAt, payload)
	}
	start := time.Now()
	br := p.pool.SendBatch(ctx, batch)
	metrics.ObserveNetworkRequest("postgres", "feed_items_send_batch", "feed_items", start, nil)
	defer br.Close()
	for range items {
		start = time.Now()
		_, err := br.Exec()
		metrics.ObserveNetworkRequest("postgres", "feed_items_batch_exec", "feed_items", start, err)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteFeedItems удаляет записи контекста.
func (p *Postgres) DeleteFeedItems(ctx context.Context, feedContext string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM feed_items WHERE context=$1 AND id = ANY($2)`, feedContext, ids)
	metrics.ObserveNetworkRequest("postgres", "feed_items_delete", "feed_items", start, err)
	return err
}

// ListFeedItems возвращает записи контекста по убыванию id.
func (p *Postgres) ListFeedItems(ctx context.Context, feedContext string) ([]domain.FeedItem, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT payload FROM feed_items WHERE context=$1 ORDER BY id DESC`, feedContext)
	metrics.ObserveNetworkRequest("postgres", "feed_items_list", "feed_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.FeedItem
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var item domain.FeedItem
		if err := json.Unmarshal(payload, &item); err != nil {
			return nil, fmt.Errorf("decode feed item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListEvents возвращает kajian с датой события в интервале [from, to) из всех контекстов.
func (p *Postgres) ListEvents(ctx context.Context, from, to time.Time) ([]domain.FeedItem, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT DISTINCT ON (id) payload FROM feed_items
WHERE event_at >= $1 AND event_at < $2
ORDER BY id DESC, updated_at DESC
`, from, to)
	metrics.ObserveNetworkRequest("postgres", "feed_items_list_events", "feed_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.FeedItem
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var item domain.FeedItem
		if err := json.Unmarshal(payload, &item); err != nil {
			return nil, fmt.Errorf("decode feed item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
