package pgtesthelpers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/live-selectors-go/feed/postgresfeed"
	"github.com/AntonStoeckl/live-selectors-go/testutil/postgresfeed/config"
)

const (
	envAdapterType = "ADAPTER_TYPE"
	typePGXPool    = "pgx.pool"
	typeSQLDB      = "sql.db"
	typeSQLXDB     = "sqlx.db"
	connectTimeout = 3 * time.Second
)

// Wrapper gives tests access to a patch log and the raw connection behind it.
type Wrapper interface {
	GetPatchLog() *postgresfeed.PatchLog
	PatchTableName() string
	SnapshotTableName() string
	Exec(ctx context.Context, sqlQuery string) error
	Close()
}

type tables struct {
	patches   string
	snapshots string
}

func (t tables) PatchTableName() string {
	return t.patches
}

func (t tables) SnapshotTableName() string {
	return t.snapshots
}

// PGXPoolWrapper wraps pgxpool-based testing
type PGXPoolWrapper struct {
	tables
	pool *pgxpool.Pool
	pl   *postgresfeed.PatchLog
}

func (w *PGXPoolWrapper) GetPatchLog() *postgresfeed.PatchLog {
	return w.pl
}

func (w *PGXPoolWrapper) Exec(ctx context.Context, sqlQuery string) error {
	_, err := w.pool.Exec(ctx, sqlQuery)
	return err
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing
type SQLDBWrapper struct {
	tables
	db *sql.DB
	pl *postgresfeed.PatchLog
}

func (w *SQLDBWrapper) GetPatchLog() *postgresfeed.PatchLog {
	return w.pl
}

func (w *SQLDBWrapper) Exec(ctx context.Context, sqlQuery string) error {
	_, err := w.db.ExecContext(ctx, sqlQuery)
	return err
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing
type SQLXWrapper struct {
	tables
	db *sqlx.DB
	pl *postgresfeed.PatchLog
}

func (w *SQLXWrapper) GetPatchLog() *postgresfeed.PatchLog {
	return w.pl
}

func (w *SQLXWrapper) Exec(ctx context.Context, sqlQuery string) error {
	_, err := w.db.ExecContext(ctx, sqlQuery)
	return err
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// CreateWrapperWithTestConfig connects with the adapter named in ADAPTER_TYPE, creates a patch log on
// fresh tables, and ensures its schema. The tables are dropped and the connection is closed on test cleanup.
// The test is skipped if the database cannot be reached.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresfeed.Option) Wrapper {
	t.Helper()

	names := uniqueTables()
	options = append([]postgresfeed.Option{
		postgresfeed.WithTableName(names.patches),
		postgresfeed.WithSnapshotTableName(names.snapshots),
	}, options...)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	wrapper := connect(ctx, t, names, options)

	t.Cleanup(func() {
		CleanUp(t, wrapper)
		wrapper.Close()
	})

	require.NoError(t, wrapper.GetPatchLog().EnsureSchema(ctx), "error creating schema")

	return wrapper
}

func connect(ctx context.Context, t testing.TB, names tables, options []postgresfeed.Option) Wrapper {
	t.Helper()

	adapterTypeFromEnv := strings.ToLower(os.Getenv(envAdapterType))

	switch adapterTypeFromEnv {
	case typePGXPool, "":
		poolConfig, err := config.PostgresPGXPoolTestConfig()
		require.NoError(t, err, "error parsing DB pool config")

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		require.NoError(t, err, "error creating DB pool")

		if pingErr := pool.Ping(ctx); pingErr != nil {
			pool.Close()
			t.Skipf("postgres not reachable: %v", pingErr)
		}

		pl, err := postgresfeed.NewPatchLogFromPGXPool(pool, options...)
		require.NoError(t, err, "error creating patch log")

		return &PGXPoolWrapper{tables: names, pool: pool, pl: pl}

	case typeSQLDB:
		db, err := config.PostgresSQLDBTestConfig(ctx)
		if err != nil {
			t.Skipf("postgres not reachable: %v", err)
		}

		pl, err := postgresfeed.NewPatchLogFromSQLDB(db, options...)
		require.NoError(t, err, "error creating patch log")

		return &SQLDBWrapper{tables: names, db: db, pl: pl}

	case typeSQLXDB:
		db, err := config.PostgresSQLXTestConfig(ctx)
		if err != nil {
			t.Skipf("postgres not reachable: %v", err)
		}

		pl, err := postgresfeed.NewPatchLogFromSQLX(db, options...)
		require.NoError(t, err, "error creating patch log")

		return &SQLXWrapper{tables: names, db: db, pl: pl}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", adapterTypeFromEnv))
	}
}

// CleanUp drops the tables of the given wrapper.
func CleanUp(t testing.TB, wrapper Wrapper) {
	t.Helper()

	ctx := context.Background()

	for _, table := range []string{wrapper.PatchTableName(), wrapper.SnapshotTableName()} {
		err := wrapper.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
		if err != nil {
			t.Logf("error dropping table %s: %v", table, err)
		}
	}
}

// UniqueRoomID returns a room id no other test uses.
func UniqueRoomID() string {
	return "room-" + uuid.NewString()
}

func uniqueTables() tables {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	return tables{
		patches:   "patches_" + suffix,
		snapshots: "snapshots_" + suffix,
	}
}
