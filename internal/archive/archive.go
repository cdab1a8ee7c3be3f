// Package archive persists relayed mail and the chats subscribed to notifications.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mail-relay-bot/internal/logging"
	"mail-relay-bot/internal/models"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by GetMail for an unknown id.
var ErrNotFound = errors.New("mail not found")

// dateLayout matches the naive UTC timestamps of existing archives.
const dateLayout = "2006-01-02 15:04:05"

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"
)

var createTableSQL = map[string][]string{
	driverSQLite: {
		`CREATE TABLE IF NOT EXISTS chats (
id BIGINT PRIMARY KEY
);`,
		// AUTOINCREMENT keeps ids of deleted rows from being handed out again.
		`CREATE TABLE IF NOT EXISTS mails (
id INTEGER PRIMARY KEY AUTOINCREMENT,
sender VARCHAR(255),
date VARCHAR(100),
text TEXT,
html TEXT,
created_at VARCHAR(100) DEFAULT (DATETIME('now'))
);`,
	},
	driverPostgres: {
		`CREATE TABLE IF NOT EXISTS chats (
id BIGINT PRIMARY KEY
);`,
		`CREATE TABLE IF NOT EXISTS mails (
id BIGSERIAL PRIMARY KEY,
sender VARCHAR(255),
date VARCHAR(100),
text TEXT,
html TEXT,
created_at VARCHAR(100)
);`,
	},
}

type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the archive named by dsn and creates the schema. A postgres:// or
// postgresql:// URL selects PostgreSQL; anything else is a SQLite path or file: URL.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source, err := resolveDSN(dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "Open(%q) failed", dsn)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, errors.Wrapf(err, "Open(%q) failed: could not open %s database", dsn, driver)
	}
	if driver == driverSQLite {
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "Open(%q) failed: could not connect", dsn)
	}

	if err := initSchema(ctx, db, driver); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "Open(%q) failed: could not initialize the database schema", dsn)
	}
	return &Store{db: db, driver: driver}, nil
}

func resolveDSN(dsn string) (driver, source string, err error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", errors.New("empty archive dsn")
	}
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return driverPostgres, dsn, nil
	}

	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", "", errors.Wrapf(err, "create directory %q", dir)
			}
		}
	}
	source, err = sqliteDSN(dsn, url.Values{
		"_busy_timeout": {fmt.Sprintf("%d", int(5*time.Second/time.Millisecond))},
		"_journal_mode": {"WAL"},
	})
	return driverSQLite, source, err
}

func sqliteDSN(path string, addValues url.Values) (string, error) {
	var u *url.URL
	if !strings.HasPrefix(path, "file:") {
		u = &url.URL{Scheme: "file", Opaque: path}
	} else {
		var err error
		u, err = url.Parse(path)
		if err != nil {
			return "", err
		}
	}
	values := u.Query()
	for k, v := range addValues {
		if values.Has(k) {
			continue
		}
		for _, item := range v {
			values.Add(k, item)
		}
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

func initSchema(ctx context.Context, db *sql.DB, driver string) error {
	for _, stmt := range createTableSQL[driver] {
		logging.Log.Debugf("SQL Exec: %q", stmt)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "while executing %q", stmt)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the connection pool so other tables (watermarks) can share the database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// AddMail stores a mail and returns its stable id. Ids are strictly increasing.
func (s *Store) AddMail(ctx context.Context, sender string, date time.Time, text, html string) (int64, error) {
	const q = `
INSERT INTO mails (sender, date, text, html, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	var id int64
	err := s.db.QueryRowContext(ctx, q,
		sender,
		date.UTC().Format(dateLayout),
		nullString(text),
		nullString(html),
		time.Now().UTC().Format(dateLayout),
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "db insert mail failed")
	}
	return id, nil
}

// GetMail returns the archived mail with the given id, or ErrNotFound.
func (s *Store) GetMail(ctx context.Context, id int64) (*models.ArchivedMail, error) {
	const q = `SELECT id, sender, date, text, html, created_at FROM mails WHERE id = $1`
	mail, err := scanMail(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "db select mail %d failed", id)
	}
	return mail, nil
}

// ListMails returns up to limit mails, newest first. A limit <= 0 returns all of them.
func (s *Store) ListMails(ctx context.Context, limit int) ([]*models.ArchivedMail, error) {
	q := `SELECT id, sender, date, text, html, created_at FROM mails ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "db list mails failed")
	}
	defer rows.Close()

	var mails []*models.ArchivedMail
	for rows.Next() {
		mail, err := scanMail(rows)
		if err != nil {
			return nil, errors.Wrap(err, "db scan failed in ListMails")
		}
		mails = append(mails, mail)
	}
	return mails, errors.Wrap(rows.Err(), "ListMails")
}

// ListChatIDs returns every registered chat.
func (s *Store) ListChatIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chats`)
	if err != nil {
		return nil, errors.Wrap(err, "db list chats failed")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "db scan failed in ListChatIDs")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "ListChatIDs")
}

// AddChatID registers a chat. created is false when the chat was already registered.
func (s *Store) AddChatID(ctx context.Context, chatID int64) (created bool, err error) {
	const q = `INSERT INTO chats (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, q, chatID)
	if err != nil {
		return false, errors.Wrapf(err, "db insert chat %d failed", chatID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "AddChatID")
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMail(row rowScanner) (*models.ArchivedMail, error) {
	var (
		mail                  models.ArchivedMail
		sender, date, created sql.NullString
		text, html            sql.NullString
	)
	if err := row.Scan(&mail.ID, &sender, &date, &text, &html, &created); err != nil {
		return nil, err
	}
	mail.Sender = sender.String
	mail.Date = parseStoredTime(date.String)
	mail.Text = text.String
	mail.HTML = html.String
	mail.CreatedAt = parseStoredTime(created.String)
	return &mail, nil
}

func parseStoredTime(value string) time.Time {
	for _, layout := range []string{dateLayout, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
