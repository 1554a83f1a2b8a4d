package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Actions table - the code/label catalog shared with game clients
		`CREATE TABLE IF NOT EXISTS actions (
			code INTEGER PRIMARY KEY,
			label TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Judgments table - one row per scored request
		`CREATE TABLE IF NOT EXISTS judgments (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL CHECK(path IN ('classifier', 'matcher')),
			action_code INTEGER,
			action_label TEXT NOT NULL DEFAULT '',
			predicted_label TEXT NOT NULL DEFAULT '',
			judgment INTEGER NOT NULL CHECK(judgment BETWEEN 0 AND 3),
			confidence REAL,
			distance REAL,
			cosine REAL,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_judgments_action_code ON judgments(action_code)`,
		`CREATE INDEX IF NOT EXISTS idx_judgments_created_at ON judgments(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
