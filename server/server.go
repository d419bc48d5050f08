package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ben-mays/kitchen-ledger/kitchen"
)

// ApplicationServer exposes a read-only diagnostic API over the storage
// manager and the action ledger. It observes; it never mutates.
type ApplicationServer struct {
	router  *mux.Router
	server  *http.Server
	storage *kitchen.StorageManager
	log     *zap.SugaredLogger
	port    int
}

func (s *ApplicationServer) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func (s *ApplicationServer) StorageHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.storage.Snapshot())
}

type ActionsResponse struct {
	Actions []kitchen.Action `json:"actions"`
}

func (s *ApplicationServer) ActionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ActionsResponse{Actions: s.storage.Ledger().Snapshot()})
}

func (s *ApplicationServer) StatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.storage.Stats())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	bytes, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write(bytes)
}

type Config struct {
	Port int `yaml:"port"`
}

// allow zero values and set defaults
func loadConfig(provider config.Provider) Config {
	var cfg Config
	provider.Get("server").Populate(&cfg)
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return cfg
}

func Provide(provider config.Provider, storage *kitchen.StorageManager, logger *zap.Logger) (*ApplicationServer, error) {
	cfg := loadConfig(provider)
	app := ApplicationServer{storage: storage, log: logger.Sugar(), port: cfg.Port}
	app.router = mux.NewRouter()
	app.router.HandleFunc("/health", app.HealthHandler).Methods("GET")
	app.router.HandleFunc("/storage", app.StorageHandler).Methods("GET")
	app.router.HandleFunc("/actions", app.ActionsHandler).Methods("GET")
	app.router.HandleFunc("/stats", app.StatsHandler).Methods("GET")
	app.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler: app.router,
	}
	return &app, nil
}

func Start(lifecycle fx.Lifecycle, server *ApplicationServer) error {
	lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go server.server.ListenAndServe()
			server.log.Infow("diagnostics server listening", "port", server.port)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.server.Shutdown(ctx)
		},
	})
	return nil
}
