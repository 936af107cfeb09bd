package sqlite

import "database/sql"

// DB exposes the underlying handle so tests can damage rows directly.
func (s *Store) DB() *sql.DB { return s.db }
