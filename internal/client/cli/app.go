package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghosttalk/ghosttalk-client/internal/client/api"
	"github.com/ghosttalk/ghosttalk-client/internal/client/config"
	"github.com/ghosttalk/ghosttalk-client/internal/client/realtime"
	"github.com/ghosttalk/ghosttalk-client/internal/client/session"
	"github.com/ghosttalk/ghosttalk-client/internal/client/storage"
	"github.com/ghosttalk/ghosttalk-client/internal/client/token"
	"github.com/ghosttalk/ghosttalk-client/internal/filex"
	"github.com/ghosttalk/ghosttalk-client/internal/logging"

	_ "modernc.org/sqlite"
)

// Mode is the connectivity state shown in the prompt.
type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const appName = "ghosttalk"

// App wires the client stack together for the interactive terminal UI:
// durable SQLite scope, per-run scope, token store, REST client, realtime
// transport, and the session controller on top.
type App struct {
	config     *config.Config
	log        logging.Logger
	db         *sql.DB
	session    storage.Scope
	durable    storage.Scope
	tokens     *token.Store
	api        api.Client
	transport  *realtime.Transport
	controller *session.Controller
	reader     *bufio.Reader

	Mode Mode

	roomMu   sync.Mutex
	rooms    map[string]func() // roomID -> subscription disposer
	activeRm string
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()
	log := logging.NewDefault(slog.LevelInfo)

	dir, err := filex.EnsureDataDir(c.DataDir, appName)
	if err != nil {
		return nil, err
	}

	// Open applies the embedded migrations before returning.
	db, err := storage.Open(ctx, filepath.Join(dir, "ghosttalk.db"))
	if err != nil {
		return nil, err
	}

	durable := storage.NewSQLiteScope(db)
	sess := storage.NewMemoryScope()
	tokens := token.NewStore(sess, durable, log)

	clientID, err := deviceID(ctx, durable)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	apiClient := api.NewHTTPClient(c.ServerURL, tokens.Get, log)

	rt := realtime.New(c.RealtimeURL, realtime.TokenSource(tokens.Get), clientID, log)
	rt.SetReconnectDelay(c.ReconnectDelay)

	ctrl := session.NewController(apiClient, tokens, rt, sess, durable, log)
	ctrl.SetRevalidateTimeout(c.RevalidateTimeout)

	app := &App{
		config:     c,
		log:        log,
		db:         db,
		session:    sess,
		durable:    durable,
		tokens:     tokens,
		api:        apiClient,
		transport:  rt,
		controller: ctrl,
		reader:     bufio.NewReader(os.Stdin),
		Mode:       ModeOnline,
		rooms:      make(map[string]func()),
	}
	ctrl.SetConnectivityProbe(app.probeOnline)

	return app, nil
}

// deviceID returns the stable identifier for this installation, minting and
// persisting one on first run.
func deviceID(ctx context.Context, durable storage.Scope) (string, error) {
	id, err := durable.Get(ctx, storage.KeyClientID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := durable.Set(ctx, storage.KeyClientID, id); err != nil {
		return "", err
	}
	return id, nil
}

// Run resolves the persisted session and hands control to the REPL.
func (a *App) Run(ctx context.Context) {
	defer a.Close()
	a.controller.Bootstrap(ctx)
	a.Root(ctx)
}

// Close releases the realtime connection and the local database.
func (a *App) Close() {
	a.transport.Disconnect()
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) isLoggedIn() bool {
	return a.controller.Status() == session.StatusAuthenticated
}

// probeOnline reports server reachability. A rejected request still proves
// the server is reachable; only a transport-level failure counts as offline.
func (a *App) probeOnline(ctx context.Context) bool {
	err := a.api.Validate(ctx)
	return !errors.Is(err, api.ErrUnavailable)
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		a.log.Info(context.Background(), "connectivity changed", "mode", string(mode))
	}
}

// StartOnlineStatusWatcher periodically probes the backend and flips the
// prompt between online and offline. It returns when ctx is cancelled.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			online := a.probeOnline(pctx)
			cancel()

			if online {
				a.setMode(ModeOnline)
			} else {
				a.setMode(ModeOffline)
			}

		case <-ctx.Done():
			return
		}
	}
}
