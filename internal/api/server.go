package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/hosting"
	"github.com/greenroomhq/greenroom/internal/orchestrator"
)

// Server is the greenroom API server.
type Server struct {
	addr   string
	mux    *http.ServeMux
	logger *slog.Logger

	store  *db.Store
	orch   *orchestrator.Orchestrator
	poller *hosting.Poller
}

// Config holds server configuration.
type Config struct {
	Addr   string
	Logger *slog.Logger

	// Poller, when set, refreshes open PR records in the background for
	// the lifetime of the server.
	Poller *hosting.Poller
}

// New creates the API server and registers its routes.
func New(cfg *Config, store *db.Store, orch *orchestrator.Orchestrator) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8617"
	}

	s := &Server{
		addr:   addr,
		mux:    http.NewServeMux(),
		logger: logger,
		store:  store,
		orch:   orch,
		poller: cfg.Poller,
	}
	s.registerRoutes()
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	// CORS middleware wrapper
	cors := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			h(w, r)
		}
	}

	// Health check
	s.mux.HandleFunc("GET /api/health", cors(s.handleHealth))

	// Attempts
	s.mux.HandleFunc("POST /api/task-attempts", cors(s.handleCreateAttempt))
	s.mux.HandleFunc("GET /api/task-attempts", cors(s.handleListAttempts))
	s.mux.HandleFunc("GET /api/task-attempts/{id}", cors(s.handleGetAttempt))
	s.mux.HandleFunc("DELETE /api/task-attempts/{id}", cors(s.handleDeleteAttempt))
	s.mux.HandleFunc("GET /api/task-attempts/{id}/repos", cors(s.handleAttemptRepos))
	s.mux.HandleFunc("GET /api/task-attempts/{id}/children", cors(s.handleAttemptChildren))
	s.mux.HandleFunc("GET /api/task-attempts/{id}/processes", cors(s.handleAttemptProcesses))

	// Follow-ups and the draft queue
	s.mux.HandleFunc("POST /api/task-attempts/{id}/follow-up", cors(s.handleFollowUp))
	s.mux.HandleFunc("POST /api/task-attempts/{id}/follow-up/queue", cors(s.handleQueueFollowUp))
	s.mux.HandleFunc("GET /api/task-attempts/{id}/follow-up/queue", cors(s.handleGetQueuedFollowUp))
	s.mux.HandleFunc("DELETE /api/task-attempts/{id}/follow-up/queue", cors(s.handleDiscardQueuedFollowUp))

	// Branch integration
	s.mux.HandleFunc("GET /api/task-attempts/{id}/branch-status", cors(s.handleBranchStatus))
	s.mux.HandleFunc("POST /api/task-attempts/{id}/merge", cors(s.handleMerge))
	s.mux.HandleFunc("POST /api/task-attempts/{id}/push", cors(s.handlePush))
	s.mux.HandleFunc("POST /api/task-attempts/{id}/push/force", cors(s.handleForcePush))
	s.mux.HandleFunc("POST /api/task-attempts/{id}/rebase", cors(s.handleRebase))
	s.mux.HandleFunc("POST /api/task-attempts/{id}/conflicts/abort", cors(s.handleAbortConflicts))
	s.mux.HandleFunc("POST /api/task-attempts/{id}/change-target-branch", cors(s.handleChangeTargetBranch))
	s.mux.HandleFunc("POST /api/task-attempts/{id}/rename-branch", cors(s.handleRenameBranch))
	s.mux.HandleFunc("POST /api/task-attempts/{id}/pr/attach", cors(s.handleAttachPR))

	// Scripts and dev server
	s.mux.HandleFunc("POST /api/task-attempts/{id}/run-setup-script", cors(s.handleRunSetupScript))
	s.mux.HandleFunc("POST /api/task-attempts/{id}/run-cleanup-script", cors(s.handleRunCleanupScript))
	s.mux.HandleFunc("POST /api/task-attempts/{id}/start-dev-server", cors(s.handleStartDevServer))
	s.mux.HandleFunc("POST /api/task-attempts/{id}/stop", cors(s.handleStop))

	// Diff streaming
	s.mux.HandleFunc("GET /api/task-attempts/{id}/diff/ws", s.handleDiffWS)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondData(w, map[string]string{"status": "ok"})
}

// Start runs the server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}

	if s.poller != nil {
		go s.poller.Run(ctx)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", s.addr)
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
