// Package pgstore is the PostgreSQL store. Documents are kept as JSONB next to
// a version column that every write compares and bumps.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/floorops/internal/billing"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/store"
	"github.com/kiwari-pos/floorops/internal/table"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements store.Store on PostgreSQL.
type Store struct {
	db    DB
	close func()
}

// New wraps an existing connection.
func New(db DB) *Store {
	return &Store{db: db, close: func() {}}
}

// Open connects a pool to databaseURL and verifies it.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: pool, close: pool.Close}, nil
}

func (s *Store) Close(ctx context.Context) error {
	s.close()
	return nil
}

// isUniqueViolation checks for pgconn error code 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func decodeOrder(doc []byte, version int64) (order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return order.Order{}, fmt.Errorf("decode order: %w", err)
	}
	o.Version = version
	return o, nil
}

func scanOrders(rows pgx.Rows, withVersion bool) ([]order.Order, error) {
	defer rows.Close()
	var out []order.Order
	for rows.Next() {
		var (
			doc []byte
			o   order.Order
			err error
		)
		if withVersion {
			var version int64
			if err := rows.Scan(&doc, &version); err != nil {
				return nil, fmt.Errorf("scan order: %w", err)
			}
			o, err = decodeOrder(doc, version)
		} else {
			// archived documents keep the version they were archived at
			if err := rows.Scan(&doc); err != nil {
				return nil, fmt.Errorf("scan order: %w", err)
			}
			err = json.Unmarshal(doc, &o)
		}
		if err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]order.Order, error) {
	rows, err := s.db.Query(ctx, `SELECT doc, version FROM active_orders ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return scanOrders(rows, true)
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error) {
	var (
		doc     []byte
		version int64
	)
	err := s.db.QueryRow(ctx, `SELECT doc, version FROM active_orders WHERE id = $1`, id).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, store.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("get order: %w", err)
	}
	return decodeOrder(doc, version)
}

func (s *Store) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	o.Version = 1
	doc, err := json.Marshal(o)
	if err != nil {
		return order.Order{}, fmt.Errorf("encode order: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO active_orders (id, table_number, version, doc) VALUES ($1, $2, $3, $4)`,
		o.ID, o.TableNumber, o.Version, doc)
	if isUniqueViolation(err) {
		return order.Order{}, store.ErrVersionConflict
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

func (s *Store) UpdateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	expected := o.Version
	o.Version++
	doc, err := json.Marshal(o)
	if err != nil {
		return order.Order{}, fmt.Errorf("encode order: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE active_orders SET doc = $1, version = $2, table_number = $3, updated_at = now()
		 WHERE id = $4 AND version = $5`,
		doc, o.Version, o.TableNumber, o.ID, expected)
	if err != nil {
		return order.Order{}, fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.Order{}, missOrConflict(ctx, s.db, o.ID)
	}
	return o, nil
}

func missOrConflict(ctx context.Context, q DB, id uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM active_orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if exists {
		return store.ErrVersionConflict
	}
	return store.ErrNotFound
}

func (s *Store) ArchiveOrders(ctx context.Context, orders []order.Order) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for i, o := range orders {
		tag, err := tx.Exec(ctx, `DELETE FROM active_orders WHERE id = $1 AND version = $2`, o.ID, o.Version)
		if err != nil {
			return fmt.Errorf("orders[%d]: delete: %w", i, err)
		}
		if tag.RowsAffected() == 0 {
			return missOrConflict(ctx, tx, o.ID)
		}
		doc, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("orders[%d]: encode: %w", i, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO order_history (id, table_number, doc) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, archived_at = now()`,
			o.ID, o.TableNumber, doc); err != nil {
			return fmt.Errorf("orders[%d]: insert history: %w", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListHistory(ctx context.Context, limit int) ([]order.Order, error) {
	q := `SELECT doc FROM order_history ORDER BY archived_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return scanOrders(rows, false)
}

func decodeBooking(doc []byte, version int64) (table.Booking, error) {
	var b table.Booking
	if err := json.Unmarshal(doc, &b); err != nil {
		return table.Booking{}, fmt.Errorf("decode booking: %w", err)
	}
	b.Version = version
	return b, nil
}

func (s *Store) ListBookings(ctx context.Context) ([]table.Booking, error) {
	rows, err := s.db.Query(ctx, `SELECT doc, version FROM table_sessions ORDER BY table_number`)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	var out []table.Booking
	for rows.Next() {
		var (
			doc     []byte
			version int64
		)
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b, err := decodeBooking(doc, version)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	return out, nil
}

func (s *Store) GetBooking(ctx context.Context, tableNumber int) (table.Booking, error) {
	var (
		doc     []byte
		version int64
	)
	err := s.db.QueryRow(ctx, `SELECT doc, version FROM table_sessions WHERE table_number = $1`, tableNumber).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return table.Booking{}, store.ErrNotFound
	}
	if err != nil {
		return table.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return decodeBooking(doc, version)
}

func (s *Store) SaveBooking(ctx context.Context, b table.Booking) (table.Booking, error) {
	expected := b.Version
	b.Version++
	doc, err := json.Marshal(b)
	if err != nil {
		return table.Booking{}, fmt.Errorf("encode booking: %w", err)
	}
	if expected == 0 {
		_, err := s.db.Exec(ctx,
			`INSERT INTO table_sessions (table_number, version, doc) VALUES ($1, $2, $3)`,
			b.TableNumber, b.Version, doc)
		if isUniqueViolation(err) {
			return table.Booking{}, store.ErrVersionConflict
		}
		if err != nil {
			return table.Booking{}, fmt.Errorf("insert booking: %w", err)
		}
		return b, nil
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE table_sessions SET doc = $1, version = $2, updated_at = now()
		 WHERE table_number = $3 AND version = $4`,
		doc, b.Version, b.TableNumber, expected)
	if err != nil {
		return table.Booking{}, fmt.Errorf("update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetBooking(ctx, b.TableNumber); err != nil {
			return table.Booking{}, err
		}
		return table.Booking{}, store.ErrVersionConflict
	}
	return b, nil
}

func (s *Store) GetVat(ctx context.Context) (billing.VatConfig, error) {
	var (
		doc     []byte
		version int64
	)
	err := s.db.QueryRow(ctx, `SELECT doc, version FROM vat_config WHERE id = 1`).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.VatConfig{}, nil
	}
	if err != nil {
		return billing.VatConfig{}, fmt.Errorf("get vat: %w", err)
	}
	var v billing.VatConfig
	if err := json.Unmarshal(doc, &v); err != nil {
		return billing.VatConfig{}, fmt.Errorf("decode vat: %w", err)
	}
	v.Version = version
	return v, nil
}

func (s *Store) SaveVat(ctx context.Context, v billing.VatConfig) (billing.VatConfig, error) {
	expected := v.Version
	v.Version++
	doc, err := json.Marshal(v)
	if err != nil {
		return billing.VatConfig{}, fmt.Errorf("encode vat: %w", err)
	}
	var tag pgconn.CommandTag
	if expected == 0 {
		tag, err = s.db.Exec(ctx,
			`INSERT INTO vat_config (id, version, doc) VALUES (1, $1, $2) ON CONFLICT (id) DO NOTHING`,
			v.Version, doc)
	} else {
		tag, err = s.db.Exec(ctx,
			`UPDATE vat_config SET doc = $1, version = $2, updated_at = now() WHERE id = 1 AND version = $3`,
			doc, v.Version, expected)
	}
	if err != nil {
		return billing.VatConfig{}, fmt.Errorf("save vat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billing.VatConfig{}, store.ErrVersionConflict
	}
	return v, nil
}
