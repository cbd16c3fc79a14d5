package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// maxTextExcerpt 限制入库的文本长度，与页面历史列表只展示摘要的行为一致。
const maxTextExcerpt = 280

// Record 描述一次已完成的分类请求。
type Record struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Prediction int       `json:"prediction"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store 把分类历史持久化到 SQLite。历史是有界的：超过 limit 的最旧记录
// 在每次写入后被裁剪，历史列表容量保持固定。
type Store struct {
	db    *sql.DB
	limit int
}

// Open 打开（或创建）历史库。path 传 ":memory:" 可得到纯内存库。
// limit <= 0 表示不裁剪。
func Open(path string, limit int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS predictions (
		id         TEXT PRIMARY KEY,
		text       TEXT NOT NULL,
		prediction INTEGER NOT NULL,
		confidence REAL NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, limit: limit}, nil
}

// Add 追加一条记录并裁剪超限的旧记录，返回落库后的完整 Record。
func (s *Store) Add(ctx context.Context, text string, prediction int, confidence float64) (*Record, error) {
	rec := &Record{
		ID:         uuid.NewString(),
		Text:       excerpt(text),
		Prediction: prediction,
		Confidence: confidence,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO predictions (id, text, prediction, confidence, created_at) VALUES (?, ?, ?, ?, ?)",
		rec.ID, rec.Text, rec.Prediction, rec.Confidence, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert prediction: %w", err)
	}

	if s.limit > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM predictions WHERE id NOT IN (
				SELECT id FROM predictions ORDER BY created_at DESC, id LIMIT ?
			)`, s.limit)
		if err != nil {
			return nil, fmt.Errorf("trim history: %w", err)
		}
	}

	return rec, nil
}

// Recent 返回按时间倒序的最近 n 条记录；n <= 0 时使用 limit。
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		n = s.limit
	}
	if n <= 0 {
		n = 50
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, text, prediction, confidence, created_at FROM predictions ORDER BY created_at DESC, id LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.Text, &rec.Prediction, &rec.Confidence, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = parsed
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Clear 清空全部历史。
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM predictions"); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Close 释放底层数据库连接。
func (s *Store) Close() error {
	return s.db.Close()
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= maxTextExcerpt {
		return text
	}
	return string(runes[:maxTextExcerpt])
}
