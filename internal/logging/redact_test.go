package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"url dsn", "postgres://journal:hunter2@db:5432/journal?sslmode=disable", "postgres://journal:xxxxx@db:5432/journal?sslmode=disable"},
		{"keyword dsn", "host=db user=journal password=hunter2 dbname=journal", "host=db user=journal password=xxxxx dbname=journal"},
		{"bearer", "Authorization: Bearer eyJhbGciOi.abc.def", "Authorization: Bearer xxxxx"},
		{"no password", "postgres://journal@db/journal", "postgres://journal@db/journal"},
		{"plain", "file.db", "file.db"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Redact(tt.in))
		})
	}
}

func TestRedactFields(t *testing.T) {
	out := RedactFields(map[string]interface{}{
		"token":  "abcdefghijklmnop",
		"note":   "password=letmein",
		"trades": 3,
		"secret": 42,
	})
	assert.Equal(t, "ab************op", out["token"])
	assert.Equal(t, "password=xxxxx", out["note"])
	assert.Equal(t, 3, out["trades"])
	assert.Equal(t, "***", out["secret"])
}

func TestMaskCredential(t *testing.T) {
	assert.Equal(t, "****", MaskCredential("abcd"))
	assert.Equal(t, "ab******ij", MaskCredential("abcdefghij"))
}
