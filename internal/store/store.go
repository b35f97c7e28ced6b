// Package store is the persistence layer: items, freshness stamps,
// engagement snapshots, source health and runtime settings, backed by
// SQLite or Postgres through sqlx.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"trendfeed/pkg/content"
)

const keywordsKey = "boost_keywords"

// Store is the persistence interface.
type Store interface {
	UpsertItems(ctx context.Context, items []content.Item) error
	ItemsBySources(ctx context.Context, sourceIDs []string, since time.Time) ([]content.Item, error)
	CountItemsBySource(ctx context.Context) (map[string]int, error)

	Freshness(ctx context.Context, sourceIDs []string) (map[string]time.Time, error)
	SetFreshness(ctx context.Context, sourceIDs []string, fetchedAt time.Time) error

	AddSnapshot(ctx context.Context, itemID string, total float64, takenAt time.Time) error
	SnapshotsSince(ctx context.Context, itemIDs []string, since time.Time) (map[string][]content.Snapshot, error)

	SourceHealth(ctx context.Context) (map[string]content.SourceHealth, error)
	UpsertSourceHealth(ctx context.Context, rec content.SourceHealth) error

	SourceOverrides(ctx context.Context) (map[string]content.SourceOverride, error)
	SetSourceOverride(ctx context.Context, ov content.SourceOverride) error

	BoostKeywords(ctx context.Context) ([]string, error)
	SetBoostKeywords(ctx context.Context, keywords []string) error

	Close() error
}

// SQLStore implements Store on sqlx. The driver decides placeholder
// style and schema dialect; queries are written once against squirrel
// or rebound from `?` form.
type SQLStore struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// Open connects to the configured database and runs migrations.
// Driver is "sqlite" (default) or "postgres"; dsn is a file path for
// sqlite and a connection string for postgres.
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "", "sqlite":
		return openSQLite(dsn)
	case "postgres":
		return openPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openSQLite(path string) (*SQLStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

func openPostgres(dsn string) (*SQLStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.Exec(schemaPostgres); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) UpsertItems(ctx context.Context, items []content.Item) error {
	for i := range items {
		if err := s.upsertItem(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) upsertItem(ctx context.Context, it *content.Item) error {
	tagsJSON, _ := json.Marshal(it.Tags)
	engJSON, err := content.MarshalEngagement(it.Engagement)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", it.ID, err)
	}

	query := s.db.Rebind(`
		INSERT INTO content_items (id, source_id, title, description, author, url, image_url, tags, engagement, published_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			author = excluded.author,
			image_url = excluded.image_url,
			tags = excluded.tags,
			engagement = excluded.engagement,
			fetched_at = excluded.fetched_at
	`)
	_, err = s.db.ExecContext(ctx, query,
		it.ID, it.SourceID, it.Title, it.Description, it.Author, it.URL,
		it.ImageURL, string(tagsJSON), engJSON, it.PublishedAt, it.FetchedAt)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", it.ID, err)
	}
	return nil
}

func (s *SQLStore) ItemsBySources(ctx context.Context, sourceIDs []string, since time.Time) ([]content.Item, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	q := s.sb.Select("*").From("content_items").Where(sq.Eq{"source_id": sourceIDs})
	if !since.IsZero() {
		q = q.Where(sq.GtOrEq{"published_at": since})
	}
	query, args, err := q.OrderBy("published_at DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}

	var items []content.Item
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	for i := range items {
		decodeItem(&items[i])
	}
	return items, nil
}

func (s *SQLStore) CountItemsBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT source_id, COUNT(*) AS cnt FROM content_items GROUP BY source_id")
	if err != nil {
		return nil, fmt.Errorf("count items by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var src string
		var cnt int
		if err := rows.Scan(&src, &cnt); err != nil {
			return nil, err
		}
		counts[src] = cnt
	}
	return counts, rows.Err()
}

func (s *SQLStore) Freshness(ctx context.Context, sourceIDs []string) (map[string]time.Time, error) {
	if len(sourceIDs) == 0 {
		return map[string]time.Time{}, nil
	}

	query, args, err := s.sb.Select("source_id", "fetched_at").
		From("source_freshness").
		Where(sq.Eq{"source_id": sourceIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build freshness query: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get freshness: %w", err)
	}
	defer rows.Close()

	fresh := make(map[string]time.Time, len(sourceIDs))
	for rows.Next() {
		var id string
		var ts time.Time
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, err
		}
		fresh[id] = ts
	}
	return fresh, rows.Err()
}

func (s *SQLStore) SetFreshness(ctx context.Context, sourceIDs []string, fetchedAt time.Time) error {
	if len(sourceIDs) == 0 {
		return nil
	}

	q := s.sb.Insert("source_freshness").Columns("source_id", "fetched_at")
	for _, id := range sourceIDs {
		q = q.Values(id, fetchedAt)
	}
	query, args, err := q.
		Suffix("ON CONFLICT(source_id) DO UPDATE SET fetched_at = excluded.fetched_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build freshness upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set freshness: %w", err)
	}
	return nil
}

func (s *SQLStore) AddSnapshot(ctx context.Context, itemID string, total float64, takenAt time.Time) error {
	query := s.db.Rebind("INSERT INTO engagement_snapshots (item_id, total, taken_at) VALUES (?, ?, ?)")
	if _, err := s.db.ExecContext(ctx, query, itemID, total, takenAt); err != nil {
		return fmt.Errorf("add snapshot %s: %w", itemID, err)
	}
	return nil
}

func (s *SQLStore) SnapshotsSince(ctx context.Context, itemIDs []string, since time.Time) (map[string][]content.Snapshot, error) {
	if len(itemIDs) == 0 {
		return map[string][]content.Snapshot{}, nil
	}

	query, args, err := s.sb.Select("item_id", "total", "taken_at").
		From("engagement_snapshots").
		Where(sq.Eq{"item_id": itemIDs}).
		Where(sq.GtOrEq{"taken_at": since}).
		OrderBy("taken_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build snapshots query: %w", err)
	}

	var snaps []content.Snapshot
	if err := s.db.SelectContext(ctx, &snaps, query, args...); err != nil {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}

	grouped := make(map[string][]content.Snapshot)
	for _, sn := range snaps {
		grouped[sn.ItemID] = append(grouped[sn.ItemID], sn)
	}
	return grouped, nil
}

func (s *SQLStore) SourceHealth(ctx context.Context) (map[string]content.SourceHealth, error) {
	var recs []content.SourceHealth
	if err := s.db.SelectContext(ctx, &recs, "SELECT * FROM source_health"); err != nil {
		return nil, fmt.Errorf("get source health: %w", err)
	}
	health := make(map[string]content.SourceHealth, len(recs))
	for _, r := range recs {
		health[r.SourceID] = r
	}
	return health, nil
}

func (s *SQLStore) UpsertSourceHealth(ctx context.Context, rec content.SourceHealth) error {
	query := s.db.Rebind(`
		INSERT INTO source_health (source_id, last_attempt_at, last_success_at, last_item_count, consecutive_failures, last_error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			last_attempt_at = excluded.last_attempt_at,
			last_success_at = excluded.last_success_at,
			last_item_count = excluded.last_item_count,
			consecutive_failures = excluded.consecutive_failures,
			last_error = excluded.last_error
	`)
	_, err := s.db.ExecContext(ctx, query,
		rec.SourceID, rec.LastAttemptAt, rec.LastSuccessAt,
		rec.LastItemCount, rec.ConsecutiveFailures, rec.LastError)
	if err != nil {
		return fmt.Errorf("upsert source health %s: %w", rec.SourceID, err)
	}
	return nil
}

func (s *SQLStore) SourceOverrides(ctx context.Context) (map[string]content.SourceOverride, error) {
	var ovs []content.SourceOverride
	if err := s.db.SelectContext(ctx, &ovs, "SELECT * FROM source_overrides"); err != nil {
		return nil, fmt.Errorf("get source overrides: %w", err)
	}
	overrides := make(map[string]content.SourceOverride, len(ovs))
	for _, ov := range ovs {
		overrides[ov.SourceID] = ov
	}
	return overrides, nil
}

func (s *SQLStore) SetSourceOverride(ctx context.Context, ov content.SourceOverride) error {
	query := s.db.Rebind(`
		INSERT INTO source_overrides (source_id, enabled, priority)
		VALUES (?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			enabled = excluded.enabled,
			priority = excluded.priority
	`)
	if _, err := s.db.ExecContext(ctx, query, ov.SourceID, ov.Enabled, ov.Priority); err != nil {
		return fmt.Errorf("set source override %s: %w", ov.SourceID, err)
	}
	return nil
}

func (s *SQLStore) BoostKeywords(ctx context.Context) ([]string, error) {
	var raw string
	query := s.db.Rebind("SELECT value FROM settings WHERE key = ?")
	err := s.db.GetContext(ctx, &raw, query, keywordsKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get boost keywords: %w", err)
	}

	var keywords []string
	if err := json.Unmarshal([]byte(raw), &keywords); err != nil {
		return nil, fmt.Errorf("decode boost keywords: %w", err)
	}
	return keywords, nil
}

func (s *SQLStore) SetBoostKeywords(ctx context.Context, keywords []string) error {
	raw, _ := json.Marshal(keywords)
	query := s.db.Rebind(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`)
	if _, err := s.db.ExecContext(ctx, query, keywordsKey, string(raw)); err != nil {
		return fmt.Errorf("set boost keywords: %w", err)
	}
	return nil
}

func decodeItem(it *content.Item) {
	json.Unmarshal([]byte(it.TagsJSON), &it.Tags)
	it.Engagement, _ = content.UnmarshalEngagement(it.EngagementJSON)
}
