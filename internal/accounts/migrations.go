package accounts

// migration is a single versioned schema change. Migrations are applied in
// order and recorded in the schema_version table.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS email_accounts (
			user_id TEXT NOT NULL,
			email TEXT NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'DECLINED',
			principal INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, email)
		);

		CREATE INDEX IF NOT EXISTS idx_email_accounts_user ON email_accounts(user_id);

		INSERT INTO schema_version (version) VALUES (1);
		`,
	},
}
