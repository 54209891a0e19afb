package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatabaseURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		dialect string
		dsn     string
		wantErr bool
	}{
		{"postgres url", "postgres://u:p@db:5432/ideas", DialectPostgres, "postgres://u:p@db:5432/ideas", false},
		{"postgresql alias", "postgresql://u@db/ideas", DialectPostgres, "postgresql://u@db/ideas", false},
		{"key value dsn", "host=db user=u dbname=ideas", DialectPostgres, "host=db user=u dbname=ideas", false},
		{"mysql", "mysql://u:p@db:3306/ideas", DialectMySQL, "u:p@tcp(db:3306)/ideas?parseTime=true", false},
		{"sqlite", "sqlite://data/ideas.db", DialectSQLite, "data/ideas.db", false},
		{"unknown scheme", "mongodb://db/ideas", "", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dialect, dsn, err := ParseDatabaseURL(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.dialect, dialect)
			assert.Equal(t, tc.dsn, dsn)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://test.db")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DialectSQLite, cfg.DBDialect)
	assert.Equal(t, 90*time.Minute, cfg.TokenTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, int64(5*1024*1024), cfg.MaxUpload)
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://test.db")
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	assert.Error(t, err)
}

func TestDebugStringMasksPassword(t *testing.T) {
	cfg := Config{DBDialect: DialectPostgres, DBDsn: "host=db user=u password=hunter2"}
	assert.NotContains(t, cfg.DebugString(), "hunter2")

	cfg = Config{DBDialect: DialectMySQL, DBDsn: "u:hunter2@tcp(db:3306)/ideas"}
	assert.NotContains(t, cfg.DebugString(), "hunter2")
}
