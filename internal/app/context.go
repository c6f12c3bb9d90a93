package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"projectboard/internal/config"
	"projectboard/internal/db"
	"projectboard/internal/engine"
	"projectboard/internal/migrate"
)

// Workspace bundles everything a command or server needs for one board
// directory: the migrated database, the loaded config and an engine on top.
type Workspace struct {
	Dir           string
	DB            *sql.DB
	Config        *config.Config
	Engine        engine.Engine
	SchemaVersion int
}

// OpenWorkspace opens (creating if needed) the board database under dir,
// applies pending migrations and loads projectboard.yml when present.
func OpenWorkspace(ctx context.Context, dir string, log *slog.Logger) (*Workspace, error) {
	if dir == "" {
		dir = "."
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg)
	eng.Log = log
	if log != nil {
		log.Debug("workspace opened", "dir", dir, "db", db.Path(dir), "schema_version", version)
	}
	return &Workspace{Dir: dir, DB: conn, Config: cfg, Engine: eng, SchemaVersion: version}, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// ParseLevel maps a level name to slog.Level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger on w (stderr when nil). JSON output is
// used when asJSON is set so machine-read runs stay parseable.
func NewLogger(w io.Writer, level string, asJSON bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
