package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresRepository(mock), mock
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("found with lines", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery(`SELECT id, user_id, shipping_info_id, shipping_price, total_price, created_at`).
			WithArgs("order-1").
			WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "shipping_info_id", "shipping_price", "total_price", "created_at"}).
				AddRow("order-1", "user-1", "ship-1", "1400", "1455", createdAt))
		mock.ExpectQuery(`SELECT id, product_id, count FROM order_items`).
			WithArgs("order-1").
			WillReturnRows(pgxmock.NewRows([]string{"id", "product_id", "count"}).
				AddRow("line-1", "p1", 11))

		o, err := repo.GetByID(ctx, "order-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if want := decimal.RequireFromString("1455"); !o.TotalPrice.Equal(want) {
			t.Fatalf("total = %s, want %s", o.TotalPrice, want)
		}
		if len(o.Lines) != 1 || o.Lines[0].Count != 11 {
			t.Fatalf("lines = %+v", o.Lines)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("missing order", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery(`SELECT id, user_id, shipping_info_id`).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestLines(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown order", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		if _, err := repo.Lines(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("order with no lines", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("order-1").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`SELECT id, product_id, count FROM order_items`).
			WithArgs("order-1").
			WillReturnRows(pgxmock.NewRows([]string{"id", "product_id", "count"}))

		if _, err := repo.Lines(ctx, "order-1"); !errors.Is(err, ErrEmptyOrder) {
			t.Fatalf("expected ErrEmptyOrder, got %v", err)
		}
	})

	t.Run("order with lines", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("order-1").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`SELECT id, product_id, count FROM order_items`).
			WithArgs("order-1").
			WillReturnRows(pgxmock.NewRows([]string{"id", "product_id", "count"}).
				AddRow("line-1", "p1", 2).
				AddRow("line-2", "p2", 1))

		lines, err := repo.Lines(ctx, "order-1")
		if err != nil {
			t.Fatalf("lines: %v", err)
		}
		if len(lines) != 2 {
			t.Fatalf("len = %d, want 2", len(lines))
		}
	})
}

func TestUpdateLineCount(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects non-positive counts", func(t *testing.T) {
		repo, _ := newMockRepo(t)

		for _, count := range []int{0, -3} {
			if _, err := repo.UpdateLineCount(ctx, "order-1", "p1", count); !errors.Is(err, ErrInvalidCount) {
				t.Fatalf("count %d: expected ErrInvalidCount, got %v", count, err)
			}
		}
	})

	t.Run("unknown line", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE order_items SET count`).
			WithArgs("order-1", "missing", 3).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		if _, err := repo.UpdateLineCount(ctx, "order-1", "missing", 3); !errors.Is(err, ErrLineNotFound) {
			t.Fatalf("expected ErrLineNotFound, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("updates and reprices in one transaction", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		createdAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE order_items SET count`).
			WithArgs("order-1", "p1", 3).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("line-1"))
		mock.ExpectExec(`UPDATE orders`).
			WithArgs("order-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()
		mock.ExpectQuery(`SELECT id, user_id, shipping_info_id`).
			WithArgs("order-1").
			WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "shipping_info_id", "shipping_price", "total_price", "created_at"}).
				AddRow("order-1", "user-1", "ship-1", "1400", "1415", createdAt))
		mock.ExpectQuery(`SELECT id, product_id, count FROM order_items`).
			WithArgs("order-1").
			WillReturnRows(pgxmock.NewRows([]string{"id", "product_id", "count"}).
				AddRow("line-1", "p1", 3))

		o, err := repo.UpdateLineCount(ctx, "order-1", "p1", 3)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if want := decimal.RequireFromString("1415"); !o.TotalPrice.Equal(want) {
			t.Fatalf("total = %s, want %s", o.TotalPrice, want)
		}
		if o.Lines[0].Count != 3 {
			t.Fatalf("count = %d, want 3", o.Lines[0].Count)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatal(err)
		}
	})
}
