package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TreasuredLabs/TreasuredLabs/internal/alert"
	"github.com/TreasuredLabs/TreasuredLabs/internal/registry"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertSubscriptionSQL = `INSERT INTO subscriptions (
        id,
        subscriber_id,
        contract_id,
        alert_kinds,
        min_confidence,
        priority,
        created_at,
        expires_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (id) DO UPDATE
    SET
        alert_kinds    = EXCLUDED.alert_kinds,
        min_confidence = EXCLUDED.min_confidence,
        priority       = EXCLUDED.priority,
        expires_at     = EXCLUDED.expires_at;`

	deleteSubscriptionSQL = `DELETE FROM subscriptions WHERE id = $1;`

	listSubscriptionsSQL = `SELECT
        id,
        subscriber_id,
        contract_id,
        alert_kinds,
        min_confidence,
        priority,
        created_at,
        expires_at
    FROM subscriptions
    ORDER BY created_at;`

	insertAlertSQL = `INSERT INTO alert_log (
        id,
        kind,
        contract_id,
        confidence,
        priority,
        payload,
        alert_ts
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (id) DO UPDATE
    SET confidence = EXCLUDED.confidence,
        alert_ts   = EXCLUDED.alert_ts;`

	listRecentAlertsSQL = `SELECT
        id,
        kind,
        contract_id,
        confidence,
        priority,
        payload,
        alert_ts,
        created_at
    FROM alert_log
    ORDER BY alert_ts DESC
    LIMIT $1;`

	listAlertsBetweenSQL = `SELECT
        id,
        kind,
        contract_id,
        confidence,
        priority,
        payload,
        alert_ts,
        created_at
    FROM alert_log
    WHERE alert_ts >= $1
      AND alert_ts < $2
    ORDER BY alert_ts;`

	deleteAlertsBeforeSQL = `DELETE FROM alert_log WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store aggregates access to subscriptions and the alert log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
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

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func. Used as a single-runner guard so only one engine instance
// dispatches alerts per deployment.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the lock falls away with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// SaveSubscription persists or updates a subscription.
func (s *Store) SaveSubscription(ctx context.Context, sub registry.Subscription) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	kinds := make([]string, 0, len(sub.Kinds))
	for k := range sub.Kinds {
		kinds = append(kinds, string(k))
	}

	var expires interface{}
	if sub.ExpiresAt != nil {
		expires = *sub.ExpiresAt
	}

	_, execErr := pool.Exec(ctx, upsertSubscriptionSQL,
		sub.ID,
		sub.SubscriberID,
		sub.ContractID,
		kinds,
		sub.MinConfidence,
		int(sub.Priority),
		sub.CreatedAt,
		expires,
	)
	if execErr != nil {
		return fmt.Errorf("upsert subscription: %w", execErr)
	}
	return nil
}

// DeleteSubscription removes a subscription row.
func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, execErr := pool.Exec(ctx, deleteSubscriptionSQL, id); execErr != nil {
		return fmt.Errorf("delete subscription: %w", execErr)
	}
	return nil
}

// ListSubscriptions restores all persisted subscriptions.
func (s *Store) ListSubscriptions(ctx context.Context) ([]registry.Subscription, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSubscriptionsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list subscriptions: %w", queryErr)
	}
	defer rows.Close()

	subs := make([]registry.Subscription, 0)
	for rows.Next() {
		sub, scanErr := scanSubscription(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// InsertAlert appends one alert to the durable log.
func (s *Store) InsertAlert(ctx context.Context, a alert.Alert) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	_, execErr := pool.Exec(ctx, insertAlertSQL,
		a.ID,
		string(a.Kind),
		a.ContractID,
		a.Confidence,
		int(a.Priority),
		payload,
		a.Timestamp,
	)
	if execErr != nil {
		return fmt.Errorf("insert alert: %w", execErr)
	}
	return nil
}

// ListRecentAlerts returns the newest alerts first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertLogRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ListAlertsBetween returns alerts within a time window, oldest first.
func (s *Store) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertLogRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// DeleteAlertsBefore prunes old alert log rows.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectAlerts(rows pgx.Rows) ([]AlertLogRecord, error) {
	records := make([]AlertLogRecord, 0)
	for rows.Next() {
		var rec AlertLogRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Kind,
			&rec.ContractID,
			&rec.Confidence,
			&rec.Priority,
			&rec.Payload,
			&rec.Timestamp,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanSubscription(rows pgx.Rows) (registry.Subscription, error) {
	var (
		rec     SubscriptionRecord
		expires *time.Time
	)
	if err := rows.Scan(
		&rec.ID,
		&rec.SubscriberID,
		&rec.ContractID,
		&rec.Kinds,
		&rec.MinConfidence,
		&rec.Priority,
		&rec.CreatedAt,
		&expires,
	); err != nil {
		return registry.Subscription{}, fmt.Errorf("scan subscription row: %w", err)
	}

	kinds := make(map[alert.Kind]struct{}, len(rec.Kinds))
	for _, k := range rec.Kinds {
		kinds[alert.Kind(k)] = struct{}{}
	}

	return registry.Subscription{
		ID:            rec.ID,
		SubscriberID:  rec.SubscriberID,
		ContractID:    rec.ContractID,
		Kinds:         kinds,
		MinConfidence: rec.MinConfidence,
		Priority:      alert.Tier(rec.Priority),
		CreatedAt:     rec.CreatedAt,
		ExpiresAt:     expires,
	}, nil
}

var (
	_ registry.Store     = (*Store)(nil)
	_ alert.HistoryStore = (*Store)(nil)
)
