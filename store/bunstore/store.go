// Package bunstore implements the composite Store on the Bun ORM, with
// constructors for the Postgres and SQLite dialects.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	courierstore "github.com/xraph/courier/store"
	"github.com/xraph/courier/subscriber"
)

// compile-time interface check
var _ courierstore.Store = (*Store)(nil)

// Store implements store.Store using the Bun ORM.
type Store struct {
	db *bun.DB
	pg bool
}

// New creates a Bun-backed store around an existing bun.DB.
func New(db *bun.DB) *Store {
	return &Store{
		db: db,
		pg: db.Dialect().Name() == dialect.PG,
	}
}

// NewPostgres creates a store connected to Postgres via pgdriver.
func NewPostgres(dsn string) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return New(bun.NewDB(sqldb, pgdialect.New()))
}

// NewSQLite creates a store backed by a SQLite database file.
func NewSQLite(path string) (*Store, error) {
	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	return New(bun.NewDB(sqldb, sqlitedialect.New())), nil
}

// DB returns the underlying Bun database for direct access.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate creates the required tables using Bun's CreateTable.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*subscriberModel)(nil),
		(*deliveryModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("%w: %v", courier.ErrMigrationFailed, err)
		}
	}

	// Create indexes.
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_courier_deliveries_due ON courier_deliveries (state, next_attempt_at)",
		"CREATE INDEX IF NOT EXISTS idx_courier_deliveries_subscriber ON courier_deliveries (subscriber_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_courier_subscribers_form ON courier_subscribers (form_id)",
	}
	for _, ddl := range indexes {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("%w: %v", courier.ErrMigrationFailed, err)
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Subscriber Store ====================

func (s *Store) CreateSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	m, err := toSubscriberModel(sub)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).Exec(ctx)
	return err
}

func (s *Store) GetSubscriber(ctx context.Context, subID id.ID) (*subscriber.Subscriber, error) {
	m := new(subscriberModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", subID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courier.ErrSubscriberNotFound
		}
		return nil, err
	}
	return fromSubscriberModel(m)
}

// UpdateSubscriber writes every column except the quota counters, which
// only IncrementUsageIfUnderLimit and ResetDailyUsage may touch. A stale
// read carried through an admin update must not roll the counter back.
func (s *Store) UpdateSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	m, err := toSubscriberModel(sub)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model(m).
		ExcludeColumn("daily_usage", "daily_reset_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return courier.ErrSubscriberNotFound
	}
	return nil
}

func (s *Store) DeleteSubscriber(ctx context.Context, subID id.ID) error {
	res, err := s.db.NewDelete().
		Model((*subscriberModel)(nil)).
		Where("id = ?", subID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return courier.ErrSubscriberNotFound
	}
	return nil
}

func (s *Store) ListSubscribers(ctx context.Context, formID string, opts subscriber.ListOpts) ([]*subscriber.Subscriber, error) {
	var models []subscriberModel
	q := s.db.NewSelect().Model(&models)

	if formID != "" {
		q = q.Where("form_id = ?", formID)
	}
	if opts.Active != nil {
		q = q.Where("active = ?", *opts.Active)
	}
	if opts.Approval != nil {
		q = q.Where("approval = ?", string(*opts.Approval))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return subscribersFromModels(models)
}

func (s *Store) Resolve(ctx context.Context, formID string) ([]*subscriber.Subscriber, error) {
	var models []subscriberModel
	if err := s.db.NewSelect().
		Model(&models).
		Where("form_id = ?", formID).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	return subscribersFromModels(models)
}

// IncrementUsageIfUnderLimit performs the quota consume as a single
// conditional UPDATE so concurrent publishes cannot overshoot the limit.
func (s *Store) IncrementUsageIfUnderLimit(ctx context.Context, subID id.ID) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*subscriberModel)(nil)).
		Set("daily_usage = daily_usage + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", subID.String()).
		Where("daily_limit > 0").
		Where("daily_usage < daily_limit").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}

	// No row updated: unlimited subscriber, exhausted quota, or missing row.
	var dailyLimit int
	err = s.db.NewSelect().
		Model((*subscriberModel)(nil)).
		Column("daily_limit").
		Where("id = ?", subID.String()).
		Limit(1).
		Scan(ctx, &dailyLimit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, courier.ErrSubscriberNotFound
		}
		return false, err
	}
	return dailyLimit <= 0, nil
}

// ResetDailyUsage advances the reset boundary, guarded so a window is only
// reset once no matter how many gate checks race across it.
func (s *Store) ResetDailyUsage(ctx context.Context, subID id.ID, nextReset time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*subscriberModel)(nil)).
		Set("daily_usage = 0").
		Set("daily_reset_at = ?", nextReset).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", subID.String()).
		Where("daily_reset_at < ?", nextReset).
		Exec(ctx)
	return err
}

func subscribersFromModels(models []subscriberModel) ([]*subscriber.Subscriber, error) {
	result := make([]*subscriber.Subscriber, len(models))
	for i := range models {
		sub, err := fromSubscriberModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// ==================== Delivery Store ====================

func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	return err
}

func (s *Store) CreateDeliveries(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}
	models := make([]deliveryModel, len(ds))
	for i, d := range ds {
		models[i] = *toDeliveryModel(d)
	}
	_, err := s.db.NewInsert().Model(&models).Exec(ctx)
	return err
}

// ClaimDue atomically moves due deliveries into in_progress and returns
// them. On Postgres the inner select uses SKIP LOCKED so concurrent sweeps
// never double-claim; on SQLite the single-writer lock gives the same
// guarantee.
func (s *Store) ClaimDue(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	locking := ""
	if s.pg {
		locking = " FOR UPDATE SKIP LOCKED"
	}

	now := time.Now().UTC()
	var models []deliveryModel
	err := s.db.NewRaw(`
		UPDATE courier_deliveries
		SET state = 'in_progress', updated_at = ?
		WHERE id IN (
			SELECT id FROM courier_deliveries
			WHERE state IN ('pending', 'scheduled') AND next_attempt_at <= ?
			ORDER BY next_attempt_at ASC
			LIMIT ?`+locking+`
		)
		RETURNING *
	`, now, now, limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}
	return deliveriesFromModels(models)
}

func (s *Store) ClaimDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var models []deliveryModel
	err := s.db.NewRaw(`
		UPDATE courier_deliveries
		SET state = 'in_progress', updated_at = ?
		WHERE id = ? AND state NOT IN ('in_progress', 'succeeded')
		RETURNING *
	`, time.Now().UTC(), delID.String()).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, courier.ErrDeliveryNotFound
	}
	return fromDeliveryModel(&models[0])
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return courier.ErrDeliveryNotFound
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", delID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, err
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListBySubscriber(ctx context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.db.NewSelect().Model(&models).Where("subscriber_id = ?", subID.String())

	if opts.State != nil {
		q = q.Where("state = ?", string(*opts.State))
	}
	if opts.From != nil {
		q = q.Where("created_at >= ?", *opts.From)
	}
	if opts.To != nil {
		q = q.Where("created_at <= ?", *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return deliveriesFromModels(models)
}

func (s *Store) ListRetryable(ctx context.Context, now time.Time, limit int) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.db.NewSelect().
		Model(&models).
		Where("state = ?", string(delivery.StateFailed)).
		Where("next_attempt_at IS NOT NULL").
		Where("next_attempt_at <= ?", now).
		Order("next_attempt_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return deliveriesFromModels(models)
}

func (s *Store) ListStaleClaims(ctx context.Context, cutoff time.Time, limit int) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.db.NewSelect().
		Model(&models).
		Where("state = ?", string(delivery.StateInProgress)).
		Where("updated_at < ?", cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return deliveriesFromModels(models)
}

func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*deliveryModel)(nil)).
		Where("created_at < ?", cutoff).
		Where("state = ? OR (state = ? AND next_attempt_at IS NULL)",
			string(delivery.StateSucceeded), string(delivery.StateFailed)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountByState(ctx context.Context, state delivery.State) (int64, error) {
	count, err := s.db.NewSelect().
		Model((*deliveryModel)(nil)).
		Where("state = ?", string(state)).
		Count(ctx)
	return int64(count), err
}

// Stats aggregates in Go rather than SQL so the date bucketing stays
// identical across dialects.
func (s *Store) Stats(ctx context.Context, subID id.ID, days int) (*delivery.Stats, error) {
	if days <= 0 {
		days = 7
	}
	now := time.Now()
	from := now.AddDate(0, 0, -(days - 1))
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, now.Location())

	var models []deliveryModel
	if err := s.db.NewSelect().
		Model(&models).
		Where("subscriber_id = ?", subID.String()).
		Where("created_at >= ?", fromDay.UTC()).
		Scan(ctx); err != nil {
		return nil, err
	}

	byDay := make(map[string]*delivery.DayStats)
	stats := &delivery.Stats{}
	var latencySum, latencyCount int64

	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}

		day := d.CreatedAt.In(now.Location()).Format("2006-01-02")
		ds, ok := byDay[day]
		if !ok {
			ds = &delivery.DayStats{Date: day}
			byDay[day] = ds
		}

		stats.Total++
		switch {
		case d.State == delivery.StateSucceeded:
			stats.Succeeded++
			ds.Succeeded++
		case d.Terminal():
			stats.Failed++
			ds.Failed++
		default:
			ds.Pending++
		}

		if d.ResponseAt != nil {
			latencySum += int64(d.LatencyMs())
			latencyCount++
		}
	}

	for i := 0; i < days; i++ {
		day := fromDay.AddDate(0, 0, i).Format("2006-01-02")
		if ds, ok := byDay[day]; ok {
			stats.Days = append(stats.Days, *ds)
		} else {
			stats.Days = append(stats.Days, delivery.DayStats{Date: day})
		}
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}
	if latencyCount > 0 {
		stats.AvgLatencyMs = float64(latencySum) / float64(latencyCount)
	}
	return stats, nil
}

func deliveriesFromModels(models []deliveryModel) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}
