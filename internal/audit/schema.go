package audit

// TableName is the audit table kept inside the target database.
const TableName = "_pgledger_migrations"

// createTableSQL is idempotent so it can run at the start of every apply.
const createTableSQL = `CREATE TABLE IF NOT EXISTS _pgledger_migrations (
    id                 TEXT PRIMARY KEY,
    version            TEXT NOT NULL,
    description        TEXT NOT NULL,
    type               TEXT NOT NULL,
    sql                TEXT NOT NULL,
    checksum           TEXT NOT NULL,
    applied_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    execution_time_ms  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pgledger_migrations_version ON _pgledger_migrations (version);
CREATE INDEX IF NOT EXISTS idx_pgledger_migrations_applied_at ON _pgledger_migrations (applied_at);`

const upsertSQL = `INSERT INTO _pgledger_migrations
    (id, version, description, type, sql, checksum, applied_at, execution_time_ms)
VALUES (%s, %s, %s, %s, %s, %s, %s, %s)
ON CONFLICT (id) DO UPDATE SET
    version = EXCLUDED.version,
    description = EXCLUDED.description,
    type = EXCLUDED.type,
    sql = EXCLUDED.sql,
    checksum = EXCLUDED.checksum,
    applied_at = EXCLUDED.applied_at,
    execution_time_ms = EXCLUDED.execution_time_ms;`
