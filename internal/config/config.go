package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

type Config struct {
	Port        string
	DBDialect   string
	DBDsn       string
	RedisURL    string // optional; empty keeps sessions, locks and aggregate cache in-process
	JWTSecret   string
	TokenTTL    time.Duration
	UploadDir   string
	MaxUpload   int64
	CORSOrigins []string
	LoginPerMin int
	GinMode     string
	Debug       bool

	// 账号删除后, 想法和评论转交给这个占位用户
	OrphanOwnerEmail string
	AdminEmail       string
	AdminPassword    string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// ParseDatabaseURL interprets DATABASE_URL and returns (dialect, dsn).
// Supported schemes: postgres, postgresql, mysql, sqlite. A value without a scheme is
// treated as a postgres key/value DSN.
func ParseDatabaseURL(databaseURL string) (string, string, error) {
	if !strings.Contains(databaseURL, "://") {
		return DialectPostgres, databaseURL, nil
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return DialectPostgres, databaseURL, nil
	case "mysql":
		// go-sql-driver wants user:pass@tcp(host:port)/db?params
		dsn := fmt.Sprintf("tcp(%s)%s", u.Host, u.EscapedPath())
		if u.User != nil {
			dsn = u.User.String() + "@" + dsn
		}
		q := u.Query()
		if q.Get("parseTime") == "" {
			q.Set("parseTime", "true")
		}
		return DialectMySQL, dsn + "?" + q.Encode(), nil
	case "sqlite":
		dsn := strings.TrimPrefix(databaseURL, u.Scheme+"://")
		if dsn == "" {
			return "", "", fmt.Errorf("empty sqlite path in DATABASE_URL")
		}
		return DialectSQLite, dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %s", u.Scheme)
	}
}

func Load() (Config, error) {
	cfg := Config{
		Port:             getenv("PORT", "8080"),
		RedisURL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		JWTSecret:        getenv("JWT_SECRET", "secret_key_change_me"),
		TokenTTL:         getenvDuration("TOKEN_TTL", 24*time.Hour),
		UploadDir:        getenv("UPLOAD_DIR", "./public/uploads"),
		MaxUpload:        int64(getenvInt("MAX_UPLOAD_BYTES", 5*1024*1024)),
		LoginPerMin:      getenvInt("LOGIN_RATE_PER_MIN", 10),
		GinMode:          getenv("GIN_MODE", "release"),
		Debug:            getenvBool("DEBUG", false),
		OrphanOwnerEmail: getenv("ORPHAN_OWNER_EMAIL", "former.member@ideabox.local"),
		AdminEmail:       os.Getenv("ADMIN_EMAIL"),
		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
	}

	for _, o := range strings.Split(getenv("CORS_ORIGINS", "http://localhost:3000"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	dbURL := getenv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=ideabox port=5432 sslmode=disable TimeZone=UTC")
	dialect, dsn, err := ParseDatabaseURL(dbURL)
	if err != nil {
		return cfg, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	cfg.DBDialect = dialect
	cfg.DBDsn = dsn

	if len(cfg.JWTSecret) < 16 {
		return cfg, fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	return cfg, nil
}

// DebugString returns a human-friendly configuration string with masked secrets.
func (c Config) DebugString() string {
	return fmt.Sprintf(
		"port=%s db=%s dsn=%s redis=%s uploads=%s token_ttl=%s",
		c.Port,
		c.DBDialect,
		maskDSN(c.DBDialect, c.DBDsn),
		maskDSN(DialectPostgres, c.RedisURL),
		c.UploadDir,
		c.TokenTTL,
	)
}

func maskDSN(dialect, dsn string) string {
	switch dialect {
	case DialectPostgres:
		if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
			if u.User != nil {
				u.User = url.User(u.User.Username())
			}
			return u.String()
		}
		// Fallback for DSN as key-value list
		parts := strings.Fields(dsn)
		for i, p := range parts {
			if strings.HasPrefix(strings.ToLower(p), "password=") {
				parts[i] = "password=***"
			}
		}
		return strings.Join(parts, " ")
	case DialectMySQL:
		at := strings.LastIndex(dsn, "@")
		colon := strings.Index(dsn, ":")
		if at > 0 && colon > 0 && colon < at {
			return dsn[:colon] + ":***" + dsn[at:]
		}
		return dsn
	default:
		return dsn
	}
}
