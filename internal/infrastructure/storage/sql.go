package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ingredient-checker/internal/core/analysis"
	"ingredient-checker/internal/core/ingredient"
	"ingredient-checker/internal/pkg/common"

	_ "github.com/go-sql-driver/mysql" // register mysql as database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // register sqlite as database/sql driver
)

//go:embed migrations
var migrationFiles embed.FS

type dialect struct {
	driver   string // database/sql driver name
	goose    string // goose dialect
	dir      string // migrations 子目錄
	numbered bool   // 使用 $1 佔位符
}

var dialects = map[string]dialect{
	"postgres": {driver: "pgx", goose: "postgres", dir: "migrations/postgres", numbered: true},
	"sqlite":   {driver: "sqlite", goose: "sqlite3", dir: "migrations/sqlite"},
	"mysql":    {driver: "mysql", goose: "mysql", dir: "migrations/mysql"},
}

const scanColumns = `id, input_type, raw_input, extracted_ingredients, flags, risk_level, explanation_html, source, created_at`

// SQLStore 以 database/sql 保存紀錄
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	limit   int
	ids     *IDGenerator
	now     func() time.Time
}

// OpenSQL 連線、檢查連線並視需要執行 migration
func OpenSQL(ctx context.Context, driver, dsn string, limit int, migrate bool) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == "sqlite" {
		// SQLite 只允許單一寫入者
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if migrate {
		if err := RunMigrations(ctx, db, driver); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return NewSQLStore(db, driver, limit)
}

// NewSQLStore 使用既有的連線
func NewSQLStore(db *sql.DB, driver string, limit int) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &SQLStore{db: db, dialect: d, limit: limit, ids: NewIDGenerator(), now: time.Now}, nil
}

// RunMigrations 以 goose 套用內嵌的 migration
func RunMigrations(ctx context.Context, db *sql.DB, driver string) error {
	d, ok := dialects[driver]
	if !ok {
		return fmt.Errorf("unsupported sql driver %q", driver)
	}
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect(d.goose); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, d.dir)
}

// rebind 將 ? 佔位符轉為方言的格式
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// Create 在同一個交易內寫入並刪除超過保留上限的舊紀錄
func (s *SQLStore) Create(ctx context.Context, r *analysis.Result) (*analysis.Result, error) {
	rec := r.Clone()
	rec.CreatedAt = s.now().UTC()
	rec.ID = s.ids.New(rec.CreatedAt)

	ingredients, err := json.Marshal(nonNil(rec.ExtractedIngredients))
	if err != nil {
		return nil, fmt.Errorf("marshal ingredients: %w", err)
	}
	flags, err := json.Marshal(nonNil(rec.Flags))
	if err != nil {
		return nil, fmt.Errorf("marshal flags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	insert := s.rebind(`INSERT INTO scans (` + scanColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert,
		rec.ID,
		string(rec.InputType),
		rec.RawInput,
		string(ingredients),
		string(flags),
		string(rec.RiskLevel),
		rec.ExplanationHTML,
		string(rec.Source),
		rec.CreatedAt.UnixNano(),
	); err != nil {
		return nil, fmt.Errorf("insert scan: %w", err)
	}

	trim := s.rebind(`DELETE FROM scans WHERE id NOT IN (SELECT id FROM (SELECT id FROM scans ORDER BY created_at DESC, id DESC LIMIT ?) AS keep_rows)`)
	res, err := tx.ExecContext(ctx, trim, s.limit)
	if err != nil {
		return nil, fmt.Errorf("trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		common.LogDebug("已淘汰舊的掃描紀錄", zap.Int64("count", n))
	}
	return rec, nil
}

// List 由新到舊
func (s *SQLStore) List(ctx context.Context, limit int) ([]*analysis.Result, error) {
	if limit <= 0 {
		return []*analysis.Result{}, nil
	}

	query := s.rebind(`SELECT ` + scanColumns + ` FROM scans ORDER BY created_at DESC, id DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*analysis.Result, 0, limit)
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get 取得單筆
func (s *SQLStore) Get(ctx context.Context, id string) (*analysis.Result, error) {
	query := s.rebind(`SELECT ` + scanColumns + ` FROM scans WHERE id = ?`)
	rec, err := scanResult(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, analysis.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Close 關閉連線
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(row rowScanner) (*analysis.Result, error) {
	var (
		rec                        analysis.Result
		inputType, risk, source    string
		ingredientsJSON, flagsJSON string
		createdAt                  int64
	)
	if err := row.Scan(
		&rec.ID,
		&inputType,
		&rec.RawInput,
		&ingredientsJSON,
		&flagsJSON,
		&risk,
		&rec.ExplanationHTML,
		&source,
		&createdAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(ingredientsJSON), &rec.ExtractedIngredients); err != nil {
		return nil, fmt.Errorf("decode ingredients: %w", err)
	}
	if err := json.Unmarshal([]byte(flagsJSON), &rec.Flags); err != nil {
		return nil, fmt.Errorf("decode flags: %w", err)
	}
	rec.InputType = analysis.InputType(inputType)
	rec.RiskLevel = ingredient.RiskLevel(risk)
	rec.Source = ingredient.Source(source)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return &rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Ping 檢查資料庫連線
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
