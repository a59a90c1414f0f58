package postgresfeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/AntonStoeckl/live-selectors-go/feed"
)

// EnsureSchema creates the patch and snapshot tables and their indexes if they do not exist.
func (pl *PatchLog) EnsureSchema(ctx context.Context) error {
	for _, statement := range pl.schemaStatements() {
		start := time.Now()
		_, execErr := pl.db.Exec(ctx, statement)
		pl.logQueryWithDuration(ctx, statement, logActionSchema, time.Since(start))

		if execErr != nil {
			pl.logError(ctx, logMsgSchemaFailed, execErr, logAttrQuery, statement)
			return errors.Join(feed.ErrCreatingSchemaFailed, execErr)
		}
	}

	pl.logOperation(ctx, logMsgSchemaEnsured)

	return nil
}

// schemaStatements renders the DDL with quoted table identifiers.
func (pl *PatchLog) schemaStatements() []string {
	patches := quoteIdentifier(pl.patchTableName)
	snapshots := quoteIdentifier(pl.snapshotTableName)
	guardIndex := indexName(pl.patchTableName, "append_guard")
	roomIndex := indexName(pl.patchTableName, "room_sequence")

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	sequence_number BIGSERIAL PRIMARY KEY,
	room_id TEXT NOT NULL,
	patch_id UUID NOT NULL UNIQUE,
	op TEXT NOT NULL,
	path TEXT NOT NULL,
	value JSONB NOT NULL,
	occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
	expected_sequence BIGINT NOT NULL,
	batch_position INTEGER NOT NULL
)`, patches),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (room_id, expected_sequence, batch_position)`,
			guardIndex, patches),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (room_id, sequence_number)`, roomIndex, patches),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	room_id TEXT PRIMARY KEY,
	sequence_number BIGINT NOT NULL,
	data JSONB NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL
)`, snapshots),
	}
}

// quoteIdentifier renders a possibly schema-qualified table name as quoted identifier.
func quoteIdentifier(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// indexName derives an unqualified, quoted index name from a table name.
func indexName(tableName, suffix string) string {
	return pgx.Identifier{strings.ReplaceAll(tableName, ".", "_") + "_" + suffix}.Sanitize()
}
