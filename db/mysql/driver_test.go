package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"u:p@tcp(db:3306)/engage":                       "u:p@tcp(db:3306)/engage?parseTime=true&loc=UTC",
		"u:p@tcp(db:3306)/engage?charset=utf8mb4":       "u:p@tcp(db:3306)/engage?charset=utf8mb4&parseTime=true&loc=UTC",
		"u:p@tcp(db:3306)/engage?parseTime=false":       "u:p@tcp(db:3306)/engage?parseTime=false&loc=UTC",
		"u:p@tcp(db:3306)/engage?loc=Local&parseTime=1": "u:p@tcp(db:3306)/engage?loc=Local&parseTime=1",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalize(in), in)
	}
}
