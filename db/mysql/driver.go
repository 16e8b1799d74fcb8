package mysql

import (
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Dialector returns a MySQL dialector. parseTime and UTC are forced so
// activity dates scan into time.Time in a stable zone.
func Dialector(dsn string) gorm.Dialector {
	return mysql.New(mysql.Config{
		DSN:               normalize(dsn),
		DefaultStringSize: 191,
	})
}

func normalize(dsn string) string {
	for _, opt := range []string{"parseTime=true", "loc=UTC"} {
		key := opt[:strings.IndexByte(opt, '=')+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + opt
		} else {
			dsn += "?" + opt
		}
	}
	return dsn
}
