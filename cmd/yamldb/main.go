package main

import (
	"flag"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yamldb/yamldb/internal/connmgr"
	"github.com/yamldb/yamldb/internal/mysqlserver"
	"github.com/yamldb/yamldb/internal/pgserver"
	"github.com/yamldb/yamldb/internal/reload"
	"github.com/yamldb/yamldb/internal/schema"
	"github.com/yamldb/yamldb/internal/srvconfig"
	"github.com/yamldb/yamldb/internal/yamlerr"
	"github.com/yamldb/yamldb/internal/yamlload"
)

const (
	defaultPostgresPort = 5432
	defaultMySQLPort    = 3306
)

var (
	filePath       string
	protocol       = "postgres"
	port           int
	bindAddress    = "0.0.0.0"
	username       string
	password       string
	hotReload      bool
	databaseName   string
	allowAnonymous bool
	verbose        bool
	logLevel       = "info"
)

func init() {
	flag.StringVar(&filePath, "f", "", "Path to the YAML database file (required).")
	flag.StringVar(&protocol, "protocol", protocol, "Wire protocol to serve: postgres or mysql.")
	flag.IntVar(&port, "p", 0, "Port to bind to. Defaults to 5432 (postgres) or 3306 (mysql).")
	flag.StringVar(&bindAddress, "bind-address", bindAddress, "Address to bind the listener to.")
	flag.StringVar(&username, "u", "", "Username required to authenticate.")
	flag.StringVar(&password, "P", "", "Password required to authenticate.")
	flag.BoolVar(&hotReload, "hot-reload", hotReload, "Watch the YAML file and reload on change.")
	flag.StringVar(&databaseName, "database", databaseName, "Database name override.")
	flag.BoolVar(&allowAnonymous, "allow-anonymous", allowAnonymous, "Allow any username/password to authenticate.")
	flag.BoolVar(&verbose, "v", verbose, "Enable verbose (debug) logging.")
	flag.StringVar(&logLevel, "log-level", logLevel, "Log level: error, warn, info, debug, trace.")
}

func main() {
	flag.Parse()

	configureLogging()

	if filePath == "" {
		logrus.Fatal("yamldb: -f PATH is required")
	}

	db, err := yamlload.Load(filePath)
	if err != nil {
		if ye, ok := err.(*yamlerr.Error); ok {
			logrus.Debug(ye.StackTrace())
		}
		logrus.WithError(err).Fatal("yamldb: failed to load database file")
	}
	if databaseName != "" {
		db.Name = databaseName
	}

	cfg := srvconfig.Default()
	cfg.Username = username
	cfg.Password = password
	cfg.AllowAnonymous = allowAnonymous
	cfg.Database = db.Name
	// The YAML file's database.auth block overrides CLI-supplied
	// credentials when present (spec.md §6).
	if db.Auth != nil {
		cfg.Username = db.Auth.Username
		cfg.Password = db.Auth.Password
		cfg.AllowAnonymous = false
	}

	storage := schema.NewStorage(db)

	if hotReload {
		w, err := reload.New(filePath, storage)
		if err != nil {
			logrus.WithError(err).Fatal("yamldb: failed to start hot-reload watcher")
		}
		defer w.Close()
	}

	mgr := connmgr.New(cfg)
	defer mgr.Close()

	effectivePort := port
	switch strings.ToLower(protocol) {
	case "postgres", "postgresql", "pg":
		if effectivePort == 0 {
			effectivePort = defaultPostgresPort
		}
		srv, err := pgserver.NewServer(bindAddress, effectivePort, cfg, storage, mgr)
		if err != nil {
			logrus.WithError(err).Fatal("yamldb: failed to bind PostgreSQL listener")
		}
		logrus.Infof("yamldb: serving PostgreSQL wire protocol on %s:%d", bindAddress, effectivePort)
		srv.Start()
	case "mysql":
		if effectivePort == 0 {
			effectivePort = defaultMySQLPort
		}
		srv, err := mysqlserver.NewServer(bindAddress, effectivePort, cfg, storage, mgr)
		if err != nil {
			logrus.WithError(err).Fatal("yamldb: failed to bind MySQL listener")
		}
		logrus.Infof("yamldb: serving MySQL wire protocol on %s:%d", bindAddress, effectivePort)
		srv.Start()
	default:
		logrus.Fatalf("yamldb: unknown protocol %q (want postgres or mysql)", protocol)
	}
}

// configureLogging honors a RUST_LOG-style environment variable if set,
// otherwise the --log-level/-v flags (spec.md §6).
func configureLogging() {
	level := logLevel
	if env := os.Getenv("RUST_LOG"); env != "" {
		level = env
	}
	if verbose {
		level = "debug"
	}

	parsed, err := logrus.ParseLevel(normalizeLevel(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// normalizeLevel maps the Rust tracing-style level spelling "warn" onto
// logrus's "warning"; every other level name logrus already accepts.
func normalizeLevel(level string) string {
	trimmed := strings.ToLower(strings.TrimSpace(level))
	if trimmed == "warn" {
		return "warning"
	}
	return trimmed
}
