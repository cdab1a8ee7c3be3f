package watermark

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/pkg/errors"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS watermarks (
mailbox TEXT NOT NULL PRIMARY KEY,
uid TEXT NOT NULL
);`

// SQLStore keeps watermarks in a table of the archive database. The statements
// are portable between SQLite and PostgreSQL.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates the watermarks table if needed.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, errors.Wrap(err, "create watermarks table")
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Load(ctx context.Context, mailbox string) (uint32, bool, error) {
	const q = `SELECT uid FROM watermarks WHERE mailbox = $1`
	var value string
	err := s.db.QueryRowContext(ctx, q, mailbox).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "select watermark for %q", mailbox)
	}
	uid, err := parseUID(value)
	if err != nil {
		return 0, false, errors.Wrapf(err, "watermark for %q", mailbox)
	}
	return uid, true, nil
}

func (s *SQLStore) Save(ctx context.Context, mailbox string, uid uint32) error {
	const q = `
INSERT INTO watermarks (mailbox, uid) VALUES ($1, $2)
ON CONFLICT (mailbox) DO UPDATE SET uid = EXCLUDED.uid`
	_, err := s.db.ExecContext(ctx, q, mailbox, strconv.FormatUint(uint64(uid), 10))
	return errors.Wrapf(err, "upsert watermark for %q", mailbox)
}
