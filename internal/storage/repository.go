package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tokenwatch/internal/market"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	getCachedPriceSQL = `SELECT data_json, fetched_at, ttl_seconds
    FROM token_cache
    WHERE token_ref = $1 AND chain = $2;`

	setCachedPriceSQL = `INSERT INTO token_cache (
        token_ref,
        chain,
        data_json,
        fetched_at,
        ttl_seconds
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (token_ref, chain) DO UPDATE
    SET data_json   = EXCLUDED.data_json,
        fetched_at  = EXCLUDED.fetched_at,
        ttl_seconds = EXCLUDED.ttl_seconds;`

	deleteCachedPriceSQL = `DELETE FROM token_cache WHERE token_ref = $1 AND chain = $2;`

	cleanExpiredCacheSQL = `DELETE FROM token_cache
    WHERE fetched_at + make_interval(secs => ttl_seconds) < NOW();`

	getActiveAlertsSQL = `SELECT
        id, group_id, token_ref, chain, direction, target_price,
        cooldown_minutes, last_triggered_at, is_active
    FROM alerts
    WHERE is_active
    ORDER BY id;`

	listAlertsByGroupSQL = `SELECT
        id, group_id, token_ref, chain, direction, target_price,
        cooldown_minutes, last_triggered_at, is_active
    FROM alerts
    WHERE group_id = $1
    ORDER BY id;`

	insertAlertSQL = `INSERT INTO alerts (
        group_id, token_ref, chain, direction, target_price,
        cooldown_minutes, is_active
    ) VALUES (
        $1,$2,$3,$4,$5,$6,TRUE
    )
    RETURNING id;`

	markAlertTriggeredSQL = `UPDATE alerts
    SET last_triggered_at = $2
    WHERE id = $1;`

	deactivateAlertSQL = `UPDATE alerts SET is_active = FALSE WHERE id = $1;`

	listWatchlistSQL = `SELECT DISTINCT token_ref, chain FROM watchlist ORDER BY token_ref, chain;`

	addWatchlistTokenSQL = `INSERT INTO watchlist (group_id, token_ref, chain)
    VALUES ($1,$2,$3)
    ON CONFLICT (group_id, token_ref, chain) DO NOTHING;`

	removeWatchlistTokenSQL = `DELETE FROM watchlist
    WHERE group_id = $1 AND token_ref = $2 AND chain = $3;`
)

// PriceCacheStore is the durable cache tier contract.
type PriceCacheStore interface {
	GetCachedPrice(ctx context.Context, q market.Query) (*market.Record, error)
	SetCachedPrice(ctx context.Context, q market.Query, rec *market.Record, ttl time.Duration) error
	CleanExpiredCache(ctx context.Context) (int64, error)
}

// AlertStore defines the alert persistence contract used by the scheduler
// and the CLI.
type AlertStore interface {
	GetAllActiveAlerts(ctx context.Context) ([]market.Alert, error)
	MarkAlertTriggered(ctx context.Context, id int64, at time.Time) error
	InsertAlert(ctx context.Context, a market.Alert) (int64, error)
	DeactivateAlert(ctx context.Context, id int64) error
	ListAlerts(ctx context.Context, groupID int64) ([]market.Alert, error)
}

// WatchlistStore exposes the distinct tokens the warm-up loop refreshes.
type WatchlistStore interface {
	ListWatchlist(ctx context.Context) ([]market.Query, error)
	AddWatchlistToken(ctx context.Context, groupID int64, q market.Query) error
	RemoveWatchlistToken(ctx context.Context, groupID int64, q market.Query) error
}

// Store aggregates access to the token cache, alerts, and watchlist.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Expired reports whether a cache row fetched at fetchedAt with the given
// TTL is stale at now. A row exactly at its TTL is still valid; only rows
// past fetchedAt+ttl are treated as absent.
func Expired(fetchedAt time.Time, ttl time.Duration, now time.Time) bool {
	return now.After(fetchedAt.Add(ttl))
}

// GetCachedPrice reads the durable cache entry for q. Expired rows are
// deleted on the spot and reported as a miss. A miss returns (nil, nil).
func (s *Store) GetCachedPrice(ctx context.Context, q market.Query) (*market.Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var (
		data       []byte
		fetchedAt  time.Time
		ttlSeconds int64
	)
	row := pool.QueryRow(ctx, getCachedPriceSQL, q.Ref, string(q.Chain))
	if scanErr := row.Scan(&data, &fetchedAt, &ttlSeconds); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached price: %w", scanErr)
	}

	if Expired(fetchedAt, time.Duration(ttlSeconds)*time.Second, s.now()) {
		if _, delErr := pool.Exec(ctx, deleteCachedPriceSQL, q.Ref, string(q.Chain)); delErr != nil {
			return nil, fmt.Errorf("delete expired cache row: %w", delErr)
		}
		return nil, nil
	}

	var rec market.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode cached record: %w", err)
	}
	return &rec, nil
}

// SetCachedPrice upserts the durable cache entry for q.
func (s *Store) SetCachedPrice(ctx context.Context, q market.Query, rec *market.Record, ttl time.Duration) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	ttlSeconds := int64(ttl / time.Second)
	if _, execErr := pool.Exec(ctx, setCachedPriceSQL, q.Ref, string(q.Chain), data, s.now().UTC(), ttlSeconds); execErr != nil {
		return fmt.Errorf("set cached price: %w", execErr)
	}
	return nil
}

// CleanExpiredCache deletes every durable entry past its TTL and returns the
// number of rows removed.
func (s *Store) CleanExpiredCache(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, cleanExpiredCacheSQL)
	if execErr != nil {
		return 0, fmt.Errorf("clean expired cache: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// GetAllActiveAlerts loads every active alert across all groups.
func (s *Store) GetAllActiveAlerts(ctx context.Context) ([]market.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, getActiveAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("get active alerts: %w", queryErr)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// ListAlerts loads every alert belonging to one group, active or not.
func (s *Store) ListAlerts(ctx context.Context, groupID int64) ([]market.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listAlertsByGroupSQL, groupID)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts: %w", queryErr)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// InsertAlert persists a new active alert and returns its id.
func (s *Store) InsertAlert(ctx context.Context, a market.Alert) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	row := pool.QueryRow(ctx, insertAlertSQL,
		a.GroupID,
		a.Query.Ref,
		string(a.Query.Chain),
		string(a.Direction),
		a.Target.String(),
		int64(a.Cooldown/time.Minute),
	)
	if scanErr := row.Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("insert alert: %w", scanErr)
	}
	return id, nil
}

// MarkAlertTriggered stamps the last-triggered timestamp.
func (s *Store) MarkAlertTriggered(ctx context.Context, id int64, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, markAlertTriggeredSQL, id, at.UTC())
	if execErr != nil {
		return fmt.Errorf("mark alert triggered: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeactivateAlert disables an alert without deleting its row.
func (s *Store) DeactivateAlert(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deactivateAlertSQL, id); execErr != nil {
		return fmt.Errorf("deactivate alert: %w", execErr)
	}
	return nil
}

// ListWatchlist returns the distinct token queries present on any watchlist.
func (s *Store) ListWatchlist(ctx context.Context) ([]market.Query, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listWatchlistSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list watchlist: %w", queryErr)
	}
	defer rows.Close()

	queries := make([]market.Query, 0)
	for rows.Next() {
		var ref, chain string
		if err := rows.Scan(&ref, &chain); err != nil {
			return nil, err
		}
		queries = append(queries, market.Query{Ref: ref, Chain: market.Chain(chain)})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return queries, nil
}

// AddWatchlistToken adds a token to a group's watchlist.
func (s *Store) AddWatchlistToken(ctx context.Context, groupID int64, q market.Query) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, addWatchlistTokenSQL, groupID, q.Ref, string(q.Chain)); execErr != nil {
		return fmt.Errorf("add watchlist token: %w", execErr)
	}
	return nil
}

// RemoveWatchlistToken removes a token from a group's watchlist.
func (s *Store) RemoveWatchlistToken(ctx context.Context, groupID int64, q market.Query) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, removeWatchlistTokenSQL, groupID, q.Ref, string(q.Chain)); execErr != nil {
		return fmt.Errorf("remove watchlist token: %w", execErr)
	}
	return nil
}

func scanAlerts(rows pgx.Rows) ([]market.Alert, error) {
	alerts := make([]market.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlert(rows pgx.Rows) (market.Alert, error) {
	var (
		a               market.Alert
		ref             string
		chain           string
		direction       string
		targetStr       string
		cooldownMinutes int64
		lastTriggered   *time.Time
	)

	if err := rows.Scan(
		&a.ID,
		&a.GroupID,
		&ref,
		&chain,
		&direction,
		&targetStr,
		&cooldownMinutes,
		&lastTriggered,
		&a.Active,
	); err != nil {
		return market.Alert{}, err
	}

	target, err := decimal.NewFromString(targetStr)
	if err != nil {
		return market.Alert{}, fmt.Errorf("parse target price: %w", err)
	}

	a.Query = market.Query{Ref: ref, Chain: market.Chain(chain)}
	a.Direction = market.Direction(direction)
	a.Target = target
	a.Cooldown = time.Duration(cooldownMinutes) * time.Minute
	a.LastTriggeredAt = lastTriggered
	return a, nil
}

var (
	_ PriceCacheStore = (*Store)(nil)
	_ AlertStore      = (*Store)(nil)
	_ WatchlistStore  = (*Store)(nil)
)
