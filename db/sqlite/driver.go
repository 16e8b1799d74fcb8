package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// File returns a dialector for the database at path, creating its parent
// directory. Writes are serialized by SQLite, so busy waits are bounded
// and WAL lets readers proceed during a write.
func File(path string) (gorm.Dialector, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir %q: %w", dir, err)
		}
	}
	return sqlite.Open(path + "?_busy_timeout=5000&_journal_mode=WAL"), nil
}

// Memory returns a dialector for a private in-memory database. Each call
// names a fresh database that lives as long as its connection pool.
func Memory() gorm.Dialector {
	return sqlite.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
}
