package postgres

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Dialector returns a PostgreSQL (pgx) dialector. Prepared statements are
// cached per connection since the same profile queries run on every
// request.
func Dialector(dsn string) gorm.Dialector {
	return postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: false,
	})
}
