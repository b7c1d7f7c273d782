package shipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the query subset shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Store holds the SQL for shipping info rows; the single-selection rule
// lives in Service, backed by a partial unique index on
// (user_id) WHERE is_selected.
type Store interface {
	Insert(ctx context.Context, q Querier, info *Info) error
	Get(ctx context.Context, q Querier, id string) (*Info, error)
	// GetForUpdate locks the row so select/deselect decisions cannot race.
	GetForUpdate(ctx context.Context, q Querier, id string) (*Info, error)
	Selected(ctx context.Context, q Querier, userID string) (*Info, error)
	ListByUser(ctx context.Context, q Querier, userID string) ([]Info, error)
	DeselectAll(ctx context.Context, q Querier, userID string) error
	SetSelected(ctx context.Context, q Querier, id string) error
	// HasSelected reports whether the user currently has a selected row,
	// locking it if present.
	HasSelected(ctx context.Context, q Querier, userID string) (bool, error)
}

type PostgresStore struct{}

func NewPostgresStore() *PostgresStore {
	return &PostgresStore{}
}

const infoColumns = `id, user_id, address, receiver, receiver_id, is_selected, price, created_at`

func scanInfo(row pgx.Row) (*Info, error) {
	var in Info
	err := row.Scan(&in.ID, &in.UserID, &in.Address, &in.Receiver, &in.ReceiverID, &in.Selected, &in.Price, &in.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan shipping info: %w", err)
	}
	return &in, nil
}

func (s *PostgresStore) Insert(ctx context.Context, q Querier, info *Info) error {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	err := q.QueryRow(ctx, `
		INSERT INTO shipping_info (id, user_id, address, receiver, receiver_id, is_selected, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING created_at
	`, info.ID, info.UserID, info.Address, info.Receiver, info.ReceiverID, info.Selected, info.Price).Scan(&info.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert shipping info: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, q Querier, id string) (*Info, error) {
	return scanInfo(q.QueryRow(ctx, `SELECT `+infoColumns+` FROM shipping_info WHERE id=$1`, id))
}

func (s *PostgresStore) GetForUpdate(ctx context.Context, q Querier, id string) (*Info, error) {
	return scanInfo(q.QueryRow(ctx, `SELECT `+infoColumns+` FROM shipping_info WHERE id=$1 FOR UPDATE`, id))
}

func (s *PostgresStore) Selected(ctx context.Context, q Querier, userID string) (*Info, error) {
	in, err := scanInfo(q.QueryRow(ctx, `
		SELECT `+infoColumns+` FROM shipping_info
		WHERE user_id=$1 AND is_selected
	`, userID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return in, err
}

func (s *PostgresStore) ListByUser(ctx context.Context, q Querier, userID string) ([]Info, error) {
	rows, err := q.Query(ctx, `
		SELECT `+infoColumns+` FROM shipping_info
		WHERE user_id=$1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select shipping info: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var in Info
		if err := rows.Scan(&in.ID, &in.UserID, &in.Address, &in.Receiver, &in.ReceiverID, &in.Selected, &in.Price, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan shipping info: %w", err)
		}
		infos = append(infos, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return infos, nil
}

func (s *PostgresStore) DeselectAll(ctx context.Context, q Querier, userID string) error {
	if _, err := q.Exec(ctx, `
		UPDATE shipping_info SET is_selected=false WHERE user_id=$1 AND is_selected
	`, userID); err != nil {
		return fmt.Errorf("deselect shipping info: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetSelected(ctx context.Context, q Querier, id string) error {
	tag, err := q.Exec(ctx, `UPDATE shipping_info SET is_selected=true WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("select shipping info: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) HasSelected(ctx context.Context, q Querier, userID string) (bool, error) {
	var id string
	err := q.QueryRow(ctx, `
		SELECT id FROM shipping_info WHERE user_id=$1 AND is_selected FOR UPDATE
	`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("select shipping info: %w", err)
	}
	return true, nil
}
