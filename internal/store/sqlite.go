package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/inkwell-books/storefront-messaging/internal/apperr"
	"github.com/inkwell-books/storefront-messaging/internal/conversation"
	"github.com/inkwell-books/storefront-messaging/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	to_id      TEXT NOT NULL,
	from_admin TEXT,
	from_user  TEXT,
	subject    TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	read       INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	CHECK ((from_admin IS NULL) <> (from_user IS NULL))
);
CREATE INDEX IF NOT EXISTS messages_to_created ON messages (to_id, created_at);
CREATE INDEX IF NOT EXISTS messages_from_user_created ON messages (from_user, created_at);
CREATE INDEX IF NOT EXISTS messages_from_admin_created ON messages (from_admin, created_at);
`

const messageColumns = "id, to_id, from_admin, from_user, subject, body, read, created_at"

// counterpartExpr mirrors conversation.Counterpart; the single parameter is the viewer.
const counterpartExpr = "CASE WHEN from_admin IS NOT NULL THEN from_admin WHEN from_user = ? THEN to_id ELSE from_user END"

// SQLite implements MessageStore on a SQLite database. Bulk mutations run
// inside a single transaction.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Insert(ctx context.Context, m *model.Message) error {
	if err := validate(m); err != nil {
		return err
	}
	fromAdmin, fromUser := m.From.Fields()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages ("+messageColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.To, nullString(fromAdmin), nullString(fromUser), m.Subject, m.Body, boolInt(m.Read), m.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = ?", id)
	m, ok, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !ok) {
		return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (s *SQLite) Find(ctx context.Context, q Query) ([]model.Message, error) {
	where, args := sqliteWhere(q)

	order := "DESC"
	if q.Ascending {
		order = "ASC"
	}
	query := "SELECT " + messageColumns + " FROM messages" + where +
		" ORDER BY created_at " + order + ", id " + order
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}
	defer rows.Close()

	out := make([]model.Message, 0)
	for rows.Next() {
		m, ok, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if !ok {
			continue
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, nil
}

func (s *SQLite) CountCounterparts(ctx context.Context, q Query, viewerID string) (int, error) {
	where, args := sqliteWhere(q)
	query := "SELECT COUNT(DISTINCT cp) FROM (SELECT " + counterpartExpr + " AS cp FROM messages" + where + ") WHERE cp IS NOT NULL AND cp <> ?"
	args = append([]any{viewerID}, args...)
	args = append(args, viewerID)

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count counterparts: %w", err)
	}
	return n, nil
}

func (s *SQLite) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE to_id = ? AND read = 0",
		recipientID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return n, nil
}

func (s *SQLite) SetRead(ctx context.Context, id, recipientID string, read bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET read = ? WHERE id = ? AND to_id = ?",
		boolInt(read), id, recipientID,
	)
	if err != nil {
		return fmt.Errorf("failed to set read: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (s *SQLite) MarkAllRead(ctx context.Context, recipientID, senderID string) (model.ReadSweepResult, error) {
	var res model.ReadSweepResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		const filter = " WHERE to_id = ? AND (from_admin = ? OR from_user = ?) AND read = 0"
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages"+filter,
			recipientID, senderID, senderID,
		).Scan(&res.Matched); err != nil {
			return err
		}
		r, err := tx.ExecContext(ctx, "UPDATE messages SET read = 1"+filter, recipientID, senderID, senderID)
		if err != nil {
			return err
		}
		res.Modified, err = r.RowsAffected()
		return err
	})
	if err != nil {
		return model.ReadSweepResult{}, fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return res, nil
}

func (s *SQLite) DeleteBetween(ctx context.Context, pair conversation.Pair) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		where, args := sqliteWhere(Query{Between: pair})
		r, err := tx.ExecContext(ctx, "DELETE FROM messages"+where, args...)
		if err != nil {
			return err
		}
		n, err = r.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversation: %w", err)
	}
	return n, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func sqliteWhere(q Query) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.To != "" {
		clauses = append(clauses, "to_id = ?")
		args = append(args, q.To)
	}
	if q.Involving != "" {
		clauses = append(clauses, "(to_id = ? OR from_admin = ? OR from_user = ?)")
		args = append(args, q.Involving, q.Involving, q.Involving)
	}
	if !q.Between.IsZero() {
		clauses = append(clauses, "((from_admin = ? AND to_id = ?) OR (from_user = ? AND to_id = ?) OR "+
			"(from_admin = ? AND to_id = ?) OR (from_user = ? AND to_id = ?))")
		a, b := q.Between.A, q.Between.B
		args = append(args, a, b, a, b, b, a, b, a)
	}
	if q.FromAccountsOnly {
		clauses = append(clauses, "from_user IS NOT NULL")
	}
	if q.UnreadOnly {
		clauses = append(clauses, "read = 0")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanMessage reports ok=false for rows whose sender columns are malformed.
func scanMessage(row rowScanner) (*model.Message, bool, error) {
	var (
		m         model.Message
		fromAdmin sql.NullString
		fromUser  sql.NullString
		readInt   int
		createdAt int64
	)
	if err := row.Scan(&m.ID, &m.To, &fromAdmin, &fromUser, &m.Subject, &m.Body, &readInt, &createdAt); err != nil {
		return nil, false, err
	}
	from, ok := model.SenderFromFields(fromAdmin.String, fromUser.String)
	if !ok {
		return nil, false, nil
	}
	m.From = from
	m.Read = readInt == 1
	m.CreatedAt = time.Unix(0, createdAt).UTC()
	return &m, true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
