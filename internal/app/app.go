package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Joseda-hg/lazytodo/internal/api"
	"github.com/Joseda-hg/lazytodo/internal/chat"
	"github.com/Joseda-hg/lazytodo/internal/config"
	"github.com/Joseda-hg/lazytodo/internal/db"
	"github.com/Joseda-hg/lazytodo/internal/events"
	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/session"
	"github.com/Joseda-hg/lazytodo/internal/taskview"
	"github.com/Joseda-hg/lazytodo/internal/tui"
	"github.com/Joseda-hg/lazytodo/internal/web"
)

// App holds the shared pieces every front end is built from: one local
// store, one session, one API client and one refresh bus.
type App struct {
	Config   config.Config
	Store    *db.Store
	Sessions *session.Manager
	Client   *api.Client
	Bus      *events.Bus
	Logger   *log.Logger

	conn     *sql.DB
	detaches []func()
}

func Open(cfg config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := config.EnsureDir(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	store := db.NewStore(conn)
	sessions := session.NewManager(store, logger)
	return &App{
		Config:   cfg,
		Store:    store,
		Sessions: sessions,
		Client:   api.NewClient(cfg.APIURL, sessions, cfg.HTTPTimeout),
		Bus:      events.NewBus(),
		Logger:   logger,
		conn:     conn,
	}, nil
}

func (a *App) Close() error {
	for _, detach := range a.detaches {
		detach()
	}
	a.Bus.Wait()
	return a.conn.Close()
}

// TaskView builds a view model subscribed to the refresh bus.
func (a *App) TaskView() *taskview.ViewModel {
	vm := taskview.New(a.Client, a.Sessions, taskview.Options{
		Debounce:     a.Config.SearchDebounce,
		PageSize:     a.Config.PageSize,
		ServerSearch: a.Config.ServerSearch,
		Logger:       a.Logger,
		History:      a.Store,
		Views:        a.Store,
	})
	a.detaches = append(a.detaches, vm.Attach(a.Bus), vm.Close)
	return vm
}

func (a *App) ChatPanel() *chat.Panel {
	return chat.New(a.Client, a.Sessions, chat.Options{
		Publisher: a.Bus,
		History:   a.Store,
		Logger:    a.Logger,
	})
}

func (a *App) WebServer() *web.Server {
	return web.NewServer(a.Sessions, a.Client, a.TaskView(), a.ChatPanel(), web.Options{
		AllowedOrigins: a.Config.AllowedOrigins,
		Publisher:      a.Bus,
		Logger:         a.Logger,
	})
}

// WebAddr is the dashboard listen address. The host defaults to loopback.
func (a *App) WebAddr() string {
	return net.JoinHostPort(a.Config.WebHost, strconv.Itoa(a.Config.WebPort))
}

// RunTUI starts the dashboard in the background when enabled and then
// blocks in the terminal UI.
func (a *App) RunTUI() error {
	if a.Config.WebEnabled {
		server := a.WebServer()
		go func() {
			a.Logger.Printf("Web server running at http://%s", a.WebAddr())
			if err := server.Run(a.WebAddr()); err != nil {
				a.Logger.Printf("web server error: %v", err)
			}
		}()
	}

	return tui.Run(tui.Deps{
		Tasks:   a.TaskView(),
		Chat:    a.ChatPanel(),
		History: a.Store,
		Logger:  a.Logger,
	})
}

// ListTasks runs one list request through a view model so the result is
// reconciled exactly like the interactive views.
func (a *App) ListTasks(ctx context.Context, filter model.Filter, sort model.Sort) ([]model.Task, taskview.Stats, error) {
	vm := taskview.New(a.Client, a.Sessions, taskview.Options{
		PageSize:     a.Config.PageSize,
		ServerSearch: a.Config.ServerSearch,
		Logger:       a.Logger,
	})
	defer vm.Close()

	if err := vm.Apply(ctx, filter, sort); err != nil {
		return nil, taskview.Stats{}, err
	}
	snap := vm.Snapshot()
	return snap.Tasks, snap.Stats, nil
}

// OpenLog appends to a log file beside the database. The terminal UI owns
// the screen, so nothing may write to stderr while it runs.
func OpenLog(dbPath string) (*log.Logger, io.Closer, error) {
	path := filepath.Join(filepath.Dir(dbPath), "lazytodo.log")
	if err := config.EnsureDir(path); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	return log.New(file, "", log.LstdFlags), file, nil
}
