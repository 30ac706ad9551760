// Command educafric-sync runs the offline action queue and sync engine as
// a localhost sidecar. UI clients enqueue actions and read cached data over
// the local HTTP surface; the engine drains the queue against the remote
// authority whenever connectivity allows.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/simonmuehling/educafric-app-sub010/internal/cache"
	"github.com/simonmuehling/educafric-app-sub010/internal/config"
	"github.com/simonmuehling/educafric-app-sub010/internal/connectivity"
	"github.com/simonmuehling/educafric-app-sub010/internal/demo"
	"github.com/simonmuehling/educafric-app-sub010/internal/logging"
	"github.com/simonmuehling/educafric-app-sub010/internal/models"
	"github.com/simonmuehling/educafric-app-sub010/internal/queue"
	"github.com/simonmuehling/educafric-app-sub010/internal/store"
	"github.com/simonmuehling/educafric-app-sub010/internal/syncer"
)

// Version is set at build time.
var Version = "0.1.0"

// cachePurgeInterval bounds how long expired cache generations linger on
// disk. They are invisible to reads either way.
const cachePurgeInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("invalid configuration", err, nil)
		os.Exit(1)
	}

	logging.Init(os.Stdout, logging.ParseLevel(cfg.LogLevel))

	sandbox := sandboxEnabled(cfg)
	logging.Info("educafric offline sync starting", map[string]interface{}{
		"version":  Version,
		"data_dir": cfg.DataDir,
		"sandbox":  sandbox,
	})

	// A store that cannot open is fatal; never degrade to in-memory.
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		logging.Error("durable store unavailable", err, nil)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queueMgr := queue.NewManager(st)
	cacheMgr := cache.NewManager(st)

	dispatcher := syncer.NewHTTPDispatcher(cfg.RemoteBaseURL, nil)
	orchestrator := syncer.NewOrchestrator(queueMgr, dispatcher, cfg.MaxRetries)

	preloader := demo.NewPreloader(st, cacheMgr, sandbox)
	if preloader.Enabled() {
		if err := preloader.Seed(); err != nil {
			logging.Error("failed to seed sandbox environment", err, nil)
			os.Exit(1)
		}
	}
	orchestrator.OnAuthFailure = func(err error) {
		if preloader.Enabled() {
			// Sandbox sessions never go through a login flow.
			logging.Debug("ignoring auth failure in sandbox mode", nil)
			return
		}
		logging.Warn("sync credentials rejected, re-authentication required",
			map[string]interface{}{"error": err.Error()})
	}

	monitor := connectivity.NewMonitor(cfg.SyncInterval)
	monitor.Start(ctx)
	defer monitor.Stop()

	orchestrator.Start(ctx, monitor.Signals())
	defer orchestrator.Stop()

	go purgeLoop(ctx, cacheMgr)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: newHandler(ctx, queueMgr, cacheMgr, orchestrator, monitor, preloader),
	}
	go func() {
		logging.Info("local API listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("local API failed", err, nil)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	logging.Info("educafric offline sync stopped", nil)
}

// sandboxEnabled decides whether the demo environment engages. Any one
// signal suffices: the explicit config flag, a sandbox hostname in the
// remote base URL, or a sandbox path prefix on it.
func sandboxEnabled(cfg *config.Config) bool {
	if cfg.Sandbox {
		return true
	}
	u, err := url.Parse(cfg.RemoteBaseURL)
	if err != nil {
		return false
	}
	return demo.IsSandboxHost(u.Hostname()) || demo.IsSandboxPath(u.Path)
}

// purgeLoop periodically deletes expired cache generations.
func purgeLoop(ctx context.Context, c *cache.Manager) {
	ticker := time.NewTicker(cachePurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.PurgeExpired(); err != nil {
				logging.Error("cache purge failed", err, nil)
			}
		}
	}
}

// newHandler builds the localhost API surface. syncCtx must outlive
// individual requests: a triggered drain keeps running after its 202 is
// written, so it cannot inherit the request context.
func newHandler(syncCtx context.Context, q *queue.Manager, c *cache.Manager, o *syncer.Orchestrator, m *connectivity.Monitor, p *demo.Preloader) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "educafric-sync",
			"version": Version,
			"online":  m.IsOnline(),
		})
	})

	mux.HandleFunc("/api/sync/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, o.Status())
	})

	mux.HandleFunc("/api/sync/trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		started := o.TriggerSync(syncCtx)
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"started": started})
	})

	mux.HandleFunc("/api/connectivity", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Online bool `json:"online"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		m.SetOnline(body.Online)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/api/actions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var body struct {
				Category  models.Category  `json:"category"`
				Operation models.Operation `json:"operation"`
				Payload   json.RawMessage  `json:"payload"`
				OwnerID   int64            `json:"owner_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "invalid body", http.StatusBadRequest)
				return
			}
			action, err := q.Enqueue(body.Category, body.Operation, body.Payload, body.OwnerID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			writeJSON(w, http.StatusCreated, action)
		case http.MethodGet:
			pending, err := q.Pending()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"pending": pending})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/cache/", func(w http.ResponseWriter, r *http.Request) {
		typ := r.URL.Path[len("/api/cache/"):]
		if typ == "" {
			http.Error(w, "missing cache type", http.StatusBadRequest)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		data, ok, err := c.Get(typ)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "not cached", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/api/auth/offline", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !p.Enabled() {
			http.Error(w, "sandbox disabled", http.StatusForbidden)
			return
		}
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		session, err := p.Authenticate(body.Username, body.Password)
		if err != nil {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, session)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
