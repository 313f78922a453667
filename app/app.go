package app

import (
	"context"

	"log/slog"

	"github.com/pharmadash/pharmadash-manager/config"
	httpapi "github.com/pharmadash/pharmadash-manager/internal/api/http"
	"github.com/pharmadash/pharmadash-manager/internal/apisrv/dashboard"
	"github.com/pharmadash/pharmadash-manager/internal/dependency"
	"github.com/pharmadash/pharmadash-manager/internal/lifecycle"
	"github.com/pharmadash/pharmadash-manager/internal/store"
)

// App is the main application
type App struct {
	hs   *httpapi.Server
	db   dependency.Repository
	c    *config.Config
	done chan struct{}
}

// New returns a new instance of App
func New(c *config.Config) *App {
	return &App{
		c:    c,
		done: make(chan struct{}),
	}
}

// Start starts the app
func (a *App) Start(ctx context.Context) error {
	var err error
	slog.Default().InfoContext(ctx, "starting pharmacy analytics manager")

	a.db, err = store.New(ctx, a.c.DB)
	if err != nil {
		slog.Default().ErrorContext(ctx, "couldn't connect to mysql", slog.String("err", err.Error()))
		return err
	}

	coord := lifecycle.NewCoordinator(a.c.Coordinator)
	ds := dashboard.New(a.db.Analytics(), coord)

	a.hs = httpapi.New(&a.c.HTTP)
	if err = a.hs.Start(ctx, ds, a.db); err != nil {
		slog.Default().ErrorContext(ctx, "cannot start http server", slog.String("err", err.Error()))
		return err
	}

	go func() {
		<-a.hs.Done()
		close(a.done)
	}()

	return nil
}

// Stop stops the application and waits for all services to exit
func (a *App) Stop(ctx context.Context) {
	if a.db != nil {
		a.db.Close()
	}
}

// Done returns a channel that is closed after the application has exited
func (a *App) Done() chan struct{} {
	return a.done
}
