package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/room"
)

// SessionReporter is the read-only session view the debug endpoint serves.
type SessionReporter interface {
	State() core.SessionState
	IsHost() bool
	Registry() *room.Registry
}

// MediaReporter reports live transport totals.
type MediaReporter interface {
	Counts() (producers, receiveTransports, consumers int)
	HasSendTransport() bool
}

type Options struct {
	Address string
	Session SessionReporter
	Media   MediaReporter
}

// App is the diagnostics HTTP server: Prometheus metrics plus a session
// debug view. It runs next to the client and is optional.
type App struct {
	Options

	server *http.Server
}

func New(options Options) *App {
	app := &App{Options: options}
	app.server = &http.Server{
		Addr:              options.Address,
		Handler:           app.initRouter(),
		ReadHeaderTimeout: 1 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return app
}

func (app *App) Start() error {
	log.Info().Str("service", "diag").Str("address", app.Address).Msg("diagnostics server listening")
	err := app.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (app *App) Stop(ctx context.Context) error {
	app.server.SetKeepAlivesEnabled(false)
	return app.server.Shutdown(ctx)
}

func (app *App) initRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/debug/session", app.sessionHandler)

	return r
}

type sessionReport struct {
	State             core.SessionState `json:"state"`
	Host              bool              `json:"host"`
	Peers             int               `json:"peers"`
	Awaiting          int               `json:"awaiting"`
	ChatMessages      int               `json:"chatMessages"`
	Producers         int               `json:"producers"`
	ReceiveTransports int               `json:"receiveTransports"`
	Consumers         int               `json:"consumers"`
	SendTransport     bool              `json:"sendTransport"`
}

func (app *App) sessionHandler(w http.ResponseWriter, _ *http.Request) {
	if app.Session == nil {
		http.Error(w, "no session", http.StatusServiceUnavailable)
		return
	}

	report := sessionReport{
		State:        app.Session.State(),
		Host:         app.Session.IsHost(),
		Peers:        len(app.Session.Registry().Peers()),
		Awaiting:     len(app.Session.Registry().Awaiting()),
		ChatMessages: len(app.Session.Registry().Chat()),
	}
	if app.Media != nil {
		report.Producers, report.ReceiveTransports, report.Consumers = app.Media.Counts()
		report.SendTransport = app.Media.HasSendTransport()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		log.Error().Err(err).Str("service", "diag").Msg("encode session report")
	}
}
