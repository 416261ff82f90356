package core

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/heiftools/heifconv/internal/codec"
	"github.com/heiftools/heifconv/internal/config"
	"github.com/heiftools/heifconv/internal/db"
	"github.com/heiftools/heifconv/internal/progress"
	"github.com/heiftools/heifconv/internal/runner"
	"github.com/heiftools/heifconv/internal/store"
	"github.com/heiftools/heifconv/internal/websocket"
	"github.com/heiftools/heifconv/migrations"
)

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	Config     *config.Config
	DB         *sql.DB
	Hub        *websocket.Hub
	Controller *runner.Controller
	Version    string
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, running
// migrations and wiring the conversion controller to the progress hub.
func New(version string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database, migrations.FS); err != nil {
		// We can't proceed without a valid database schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	hub := websocket.NewHub()
	go hub.Run()

	ctrl := runner.New(codec.NewVipsConverter(), store.New(database))
	// Every published snapshot goes out to connected browsers.
	ctrl.Subscribe(func(snap progress.Snapshot) {
		hub.BroadcastJSON(snap)
	})

	log.Println("Core application setup complete.")
	return &App{
		Config:     cfg,
		DB:         database,
		Hub:        hub,
		Controller: ctrl,
		Version:    version,
	}, nil
}

// Close gracefully closes the application's resources, like the DB connection.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
