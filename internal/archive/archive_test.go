package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAddMail_IDsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	date := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	var last int64
	for i := 0; i < 5; i++ {
		id, err := store.AddMail(ctx, "app@example.com", date, "text", "")
		require.NoError(t, err)
		require.Greater(t, id, last)
		last = id
	}
}

func TestAddMail_IDsNotReusedAfterDelete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	date := time.Now()

	first, err := store.AddMail(ctx, "a@example.com", date, "one", "")
	require.NoError(t, err)
	second, err := store.AddMail(ctx, "a@example.com", date, "two", "")
	require.NoError(t, err)

	_, err = store.DB().ExecContext(ctx, `DELETE FROM mails WHERE id = $1`, second)
	require.NoError(t, err)

	third, err := store.AddMail(ctx, "a@example.com", date, "three", "")
	require.NoError(t, err)
	require.Greater(t, third, second)
	require.Greater(t, second, first)
}

func TestGetMail(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	date := time.Date(2024, 5, 1, 13, 30, 0, 0, time.FixedZone("MSK", 3*3600))

	id, err := store.AddMail(ctx, "app@example.com", date, "", "<p>hi</p>")
	require.NoError(t, err)

	mail, err := store.GetMail(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, mail.ID)
	require.Equal(t, "app@example.com", mail.Sender)
	require.True(t, mail.Date.Equal(date), "date %v != %v", mail.Date, date)
	require.Empty(t, mail.Text)
	require.Equal(t, "<p>hi</p>", mail.HTML)
	require.False(t, mail.CreatedAt.IsZero())
}

func TestGetMail_NotFound(t *testing.T) {
	_, err := openTestStore(t).GetMail(context.Background(), 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListMails(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	for _, text := range []string{"one", "two", "three"} {
		_, err := store.AddMail(ctx, "a@example.com", time.Now(), text, "")
		require.NoError(t, err)
	}

	all, err := store.ListMails(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "three", all[0].Text)

	latest, err := store.ListMails(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
}

func TestAddChatID_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	created, err := store.AddChatID(ctx, 42)
	require.NoError(t, err)
	require.True(t, created)

	created, err = store.AddChatID(ctx, 42)
	require.NoError(t, err)
	require.False(t, created, "second registration must be reported as existing")

	created, err = store.AddChatID(ctx, -100123)
	require.NoError(t, err)
	require.True(t, created)

	ids, err := store.ListChatIDs(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{42, -100123}, ids)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	id, err := store.AddMail(ctx, "a@example.com", time.Now(), "kept", "")
	require.NoError(t, err)
	_, err = store.AddChatID(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	mail, err := store.GetMail(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "kept", mail.Text)
	ids, err := store.ListChatIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, ids)
}

func TestResolveDSN(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		dsn        string
		wantDriver string
		wantSource string
		wantErr    bool
	}{
		{
			name:       "Postgres URL",
			dsn:        "postgres://relay:secret@db:5432/relay?sslmode=disable",
			wantDriver: driverPostgres,
			wantSource: "postgres://relay:secret@db:5432/relay?sslmode=disable",
		},
		{
			name:       "Postgresql URL",
			dsn:        "postgresql://db/relay",
			wantDriver: driverPostgres,
			wantSource: "postgresql://db/relay",
		},
		{
			name:       "SQLite path",
			dsn:        filepath.Join(dir, "data.db"),
			wantDriver: driverSQLite,
			wantSource: "file:" + filepath.Join(dir, "data.db") + "?_busy_timeout=5000&_journal_mode=WAL",
		},
		{
			name:       "SQLite file URL keeps explicit options",
			dsn:        "file:" + filepath.Join(dir, "x.db") + "?_journal_mode=DELETE",
			wantDriver: driverSQLite,
			wantSource: "file:" + filepath.Join(dir, "x.db") + "?_busy_timeout=5000&_journal_mode=DELETE",
		},
		{
			name:    "Empty",
			dsn:     "  ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, source, err := resolveDSN(tt.dsn)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantDriver, driver)
			require.Equal(t, tt.wantSource, source)
		})
	}
}
