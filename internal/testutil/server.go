// A shared test server setup utility, which simplifies all API tests.

package testutil

import (
	"testing"
	"time"

	"github.com/heiftools/heifconv/internal/config"
	"github.com/heiftools/heifconv/internal/core"
	"github.com/heiftools/heifconv/internal/runner"
	"github.com/heiftools/heifconv/internal/store"
	"github.com/heiftools/heifconv/internal/websocket"
)

// SetupTestApp builds a core.App backed by an in-memory database and a
// stub converter, so tests never need libvips.
func SetupTestApp(t *testing.T) *core.App {
	t.Helper()
	database := SetupTestDB(t)

	cfg := &config.Config{
		Format:    "png",
		Quality:   90,
		BatchSize: 10,
	}
	hub := websocket.NewHub()
	go hub.Run()

	ctrl := runner.New(&StubConverter{}, store.New(database))
	ctrl.SetPublishInterval(10 * time.Millisecond)

	return &core.App{
		Config:     cfg,
		DB:         database,
		Hub:        hub,
		Controller: ctrl,
		Version:    "test",
	}
}
