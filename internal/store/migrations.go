package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id          TEXT PRIMARY KEY,
	host        TEXT NOT NULL,
	port        INTEGER NOT NULL DEFAULT 993,
	secure      INTEGER NOT NULL DEFAULT 1 CHECK(secure IN (0, 1)),
	username    TEXT NOT NULL,
	email       TEXT NOT NULL DEFAULT '',
	active      INTEGER NOT NULL DEFAULT 1 CHECK(active IN (0, 1)),
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE accounts ADD COLUMN provider TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_accounts_created_at ON accounts(created_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
