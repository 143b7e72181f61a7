package sqldb

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// dialect captures the per-database differences the session layer cares about.
type dialect struct {
	name   string
	driver string
	// placeholder renders the n-th (1-based) bind parameter.
	placeholder func(n int) string
	quote       func(ident string) string
	// ensureUser inserts users.id = ? unless it already exists, without failing.
	ensureUser string
	// dsn converts a validated descriptor into the driver's data source name.
	dsn func(d ConnectionDescriptor) (string, error)
	// schema is the ordered DDL used by Migrate; nil when unsupported.
	schema func(d *dialect) []string
}

var dialects = map[string]*dialect{
	"postgres": {
		name:        "postgres",
		driver:      "postgres",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		quote:       doubleQuote,
		ensureUser:  "INSERT INTO users (id) VALUES (?) ON CONFLICT (id) DO NOTHING",
		dsn:         postgresDSN,
		schema:      postgresSchema,
	},
	"mysql": {
		name:        "mysql",
		driver:      "mysql",
		placeholder: func(int) string { return "?" },
		quote:       func(ident string) string { return "`" + ident + "`" },
		ensureUser:  "INSERT INTO users (id) VALUES (?) ON DUPLICATE KEY UPDATE id = id",
		dsn:         mysqlDSN,
		schema:      mysqlSchema,
	},
	"sqlite": {
		name:        "sqlite",
		driver:      "sqlite",
		placeholder: func(int) string { return "?" },
		quote:       doubleQuote,
		ensureUser:  "INSERT INTO users (id) VALUES (?) ON CONFLICT (id) DO NOTHING",
		dsn:         sqliteDSN,
		schema:      sqliteSchema,
	},
	"oracle": {
		name:        "oracle",
		driver:      "oracle",
		placeholder: func(n int) string { return ":" + strconv.Itoa(n) },
		quote:       doubleQuote,
		ensureUser:  "MERGE INTO users u USING (SELECT ? AS id FROM dual) s ON (u.id = s.id) WHEN NOT MATCHED THEN INSERT (id) VALUES (s.id)",
		dsn:         passthroughDSN("oracle"),
	},
	"mssql": {
		name:        "mssql",
		driver:      "sqlserver",
		placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
		quote:       func(ident string) string { return "[" + ident + "]" },
		ensureUser:  "MERGE INTO users WITH (HOLDLOCK) AS u USING (SELECT ? AS id) AS s ON u.id = s.id WHEN NOT MATCHED THEN INSERT (id) VALUES (s.id);",
		dsn:         passthroughDSN("sqlserver"),
	},
}

var schemeDialects = map[string]string{
	"postgresql": "postgres",
	"postgres":   "postgres",
	"mysql":      "mysql",
	"mariadb":    "mysql",
	"sqlite":     "sqlite",
	"oracle":     "oracle",
	"mssql":      "mssql",
}

func dialectFor(d ConnectionDescriptor) (*dialect, error) {
	name, ok := schemeDialects[d.BaseScheme()]
	if !ok {
		return nil, fmt.Errorf("no dialect for scheme %q", d.Scheme)
	}
	return dialects[name], nil
}

// rebind rewrites '?' markers into the dialect's placeholder syntax.
func (d *dialect) rebind(query string) string {
	if d.name == "mysql" || d.name == "sqlite" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(d.placeholder(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d *dialect) isMemory(desc ConnectionDescriptor) bool {
	return d.name == "sqlite" && sqlitePath(desc) == MemorySentinel
}

func doubleQuote(ident string) string { return `"` + ident + `"` }

func postgresDSN(d ConnectionDescriptor) (string, error) {
	u, err := url.Parse(strings.TrimSpace(d.Raw))
	if err != nil {
		return "", err
	}
	u.Scheme = "postgres"
	return u.String(), nil
}

func mysqlDSN(d ConnectionDescriptor) (string, error) {
	u, err := url.Parse(strings.TrimSpace(d.Raw))
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("mysql: host is required")
	}
	cfg := mysql.NewConfig()
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if q := u.Query(); len(q) > 0 {
		cfg.Params = make(map[string]string, len(q))
		for k := range q {
			cfg.Params[k] = q.Get(k)
		}
	}
	return cfg.FormatDSN(), nil
}

// sqlitePath resolves the database file of a sqlite descriptor. A bare
// "sqlite://" selects the in-memory database.
func sqlitePath(d ConnectionDescriptor) string {
	p := strings.TrimPrefix(d.Path, "/")
	if p == "" || p == MemorySentinel {
		return MemorySentinel
	}
	return p
}

func sqliteDSN(d ConnectionDescriptor) (string, error) {
	user, err := url.ParseQuery(d.Query)
	if err != nil {
		return "", fmt.Errorf("sqlite query parameters: %w", err)
	}

	path := sqlitePath(d)
	params := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(10000)"}
	if path != MemorySentinel {
		if user.Get("mode") != "ro" {
			params = append(params, "_pragma=journal_mode(WAL)")
		}
		params = append(params, "_pragma=synchronous(NORMAL)")
		if user.Get("_txlock") == "" {
			params = append(params, "_txlock=immediate")
		}
	}

	// Parameters without a leading underscore are SQLite URI parameters
	// (mode, cache, immutable). The driver only forwards them for file: names.
	uri := false
	for k := range user {
		if !strings.HasPrefix(k, "_") && k != "vfs" {
			uri = true
		}
	}
	if len(user) > 0 {
		params = append(params, user.Encode())
	}
	if uri {
		path = "file:" + path
	}
	return path + "?" + strings.Join(params, "&"), nil
}

// passthroughDSN hands the URL to a driver that parses URLs itself, with the
// scheme rewritten to the one that driver expects.
func passthroughDSN(scheme string) func(ConnectionDescriptor) (string, error) {
	return func(d ConnectionDescriptor) (string, error) {
		u, err := url.Parse(strings.TrimSpace(d.Raw))
		if err != nil {
			return "", err
		}
		u.Scheme = scheme
		return u.String(), nil
	}
}
