package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"testing"

	"ingredient-checker/internal/core/analysis"

	"github.com/DATA-DOG/go-sqlmock"
)

var scanColumnNames = []string{"id", "input_type", "raw_input", "extracted_ingredients", "flags", "risk_level", "explanation_html", "source", "created_at"}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLStore(db, "postgres", 50)
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	return store, mock
}

func TestSQLStoreCreateTrimsInSameTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scans (" + scanColumns + ") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)")).
		WithArgs(
			sqlmock.AnyArg(), // id
			"text",
			"salt",
			`["salt"]`,
			`[]`,
			"low",
			"<p>ok</p>\n",
			"fallback",
			sqlmock.AnyArg(), // created_at
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM scans WHERE id NOT IN (SELECT id FROM (SELECT id FROM scans ORDER BY created_at DESC, id DESC LIMIT $1) AS keep_rows)")).
		WithArgs(50).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	rec, err := store.Create(context.Background(), sampleResult("salt"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Fatalf("id and createdAt must be assigned: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestSQLStoreCreateRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scans").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := store.Create(context.Background(), sampleResult("salt")); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestSQLStoreListDecodesRows(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows(scanColumnNames).
		AddRow("01B", "image", "label.png", `["sugar","lead"]`, `["lead"]`, "medium", "<p>x</p>", "ai", int64(1714564800000000000)).
		AddRow("01A", "text", "salt", `["salt"]`, `[]`, "low", "<p>y</p>", "fallback", int64(1714564700000000000))
	mock.ExpectQuery(regexp.QuoteMeta("FROM scans ORDER BY created_at DESC, id DESC LIMIT $1")).
		WithArgs(10).
		WillReturnRows(rows)

	list, err := store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "01B" || list[0].Flags[0] != "lead" || list[0].InputType != analysis.InputImage {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].CreatedAt.Year() != 2024 {
		t.Fatalf("unexpected createdAt %v", list[0].CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestSQLStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM scans WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(scanColumnNames))

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, analysis.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRebindKeepsQuestionMarksForMySQL(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store, err := NewSQLStore(db, "mysql", 5)
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	if got := store.rebind("a = ? AND b = ?"); got != "a = ? AND b = ?" {
		t.Fatalf("rebind = %q", got)
	}
}

func TestSQLiteStoreEndToEnd(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scans.db")

	store, err := OpenSQL(ctx, "sqlite", path, 3, true)
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	store.now = fakeClock()

	var ids []string
	for i := 0; i < 5; i++ {
		rec, err := store.Create(ctx, sampleResult(fmt.Sprintf("item-%d", i)))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, rec.ID)
	}

	list, err := store.List(ctx, 50)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].RawInput != "item-4" || list[2].RawInput != "item-2" {
		t.Fatalf("unexpected list %+v", list)
	}

	got, err := store.Get(ctx, ids[3])
	if err != nil || got.RawInput != "item-3" || got.ExtractedIngredients[0] != "item-3" {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if _, err := store.Get(ctx, ids[0]); !errors.Is(err, analysis.ErrNotFound) {
		t.Fatalf("expected evicted record to be gone, got %v", err)
	}

	// migration 可重複執行
	if err := RunMigrations(ctx, store.db, "sqlite"); err != nil {
		t.Fatalf("RunMigrations again: %v", err)
	}
}
