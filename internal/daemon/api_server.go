package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"craefto/internal/api"
	"craefto/internal/config"
	"craefto/internal/contentstore"
	"craefto/internal/eventlog"
	"craefto/internal/logging"
	"craefto/internal/services"
	"craefto/internal/stage"
	"craefto/internal/workflow"
)

const (
	defaultLogLimit     = 200
	defaultContentLimit = 20
	defaultHistoryLimit = 50
	maxRequestBody      = 64 << 10
	// followWait bounds a follow request below the server write timeout; the
	// client re-polls with the returned cursor.
	followWait = 25 * time.Second
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", s.handleStartRun)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("POST /api/discard", s.handleDiscard)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/content", s.handleContent)
	mux.HandleFunc("GET /api/content/{id}", s.handleContentItem)
	mux.HandleFunc("GET /api/runs/history", s.handleHistory)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/notifications/test", s.handleTestNotification)
	return s.withRequestID(authMiddleware(token, mux))
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.String(logging.FieldErrorHint, "check that paths.api_bind is free"),
				logging.Error(err),
			)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil {
		return ""
	}
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

// withRequestID tags each request context with the caller's X-Request-ID so
// generation calls made on its behalf carry the same id.
func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get("X-Request-ID")); id != "" {
			r = r.WithContext(services.WithRequestID(r.Context(), id))
			w.Header().Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *apiServer) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req api.StartRunRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	handle, err := s.daemon.StartRun(r.Context(), req.Topic, stage.Kind(req.Kind))
	switch {
	case errors.Is(err, workflow.ErrAlreadyRunning):
		state := api.FromSnapshot(s.daemon.Snapshot())
		s.writeJSON(w, http.StatusConflict, api.ErrorResponse{Error: err.Error(), State: &state})
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("run accepted",
		logging.String("run_id", handle.ID()),
		logging.String("kind", string(handle.Job().Kind)),
		logging.String(logging.FieldEventType, "run_accepted"),
	)
	s.writeJSON(w, http.StatusAccepted, api.StateResponse{State: api.FromSnapshot(s.daemon.Snapshot())})
}

func (s *apiServer) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.StateResponse{State: api.FromSnapshot(s.daemon.Snapshot())})
}

func (s *apiServer) handleReset(w http.ResponseWriter, _ *http.Request) {
	if !s.daemon.Reset() {
		state := api.FromSnapshot(s.daemon.Snapshot())
		s.writeJSON(w, http.StatusConflict, api.ErrorResponse{Error: "cannot reset while a run is active", State: &state})
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{OK: true, Message: "state reset", State: api.FromSnapshot(s.daemon.Snapshot())})
}

func (s *apiServer) handleDiscard(w http.ResponseWriter, _ *http.Request) {
	message := "no active run"
	if s.daemon.Discard() {
		message = "run discarded"
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{OK: true, Message: message, State: api.FromSnapshot(s.daemon.Snapshot())})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	log := s.daemon.EventLog()
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := queryFlag(query.Get("follow"))
	tail := queryFlag(query.Get("tail"))

	filter, err := parseLogFilter(query.Get("level"), query.Get("source"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		entries []eventlog.Entry
		next    uint64
	)
	if tail && since == 0 && !follow {
		entries, next = log.Tail(limit)
	} else {
		ctx := r.Context()
		if follow {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, followWait)
			defer cancel()
		}
		var fetchErr error
		entries, next, fetchErr = log.Since(ctx, since, limit, follow)
		if fetchErr != nil && !errors.Is(fetchErr, context.Canceled) && !errors.Is(fetchErr, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, fetchErr.Error())
			return
		}
	}

	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{
		Events: api.FromLogEntries(filter.Apply(entries)),
		Next:   next,
	})
}

func (s *apiServer) handleContent(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultContentLimit
	}
	kind := strings.ToLower(strings.TrimSpace(query.Get("kind")))
	if kind != "" && !stage.Kind(kind).Valid() {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown content kind %q", kind))
		return
	}
	pkgs, err := s.daemon.Store().RecentContent(r.Context(), kind, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.ContentListResponse{Items: api.FromPackages(pkgs, queryFlag(query.Get("body")))})
}

func (s *apiServer) handleContentItem(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.daemon.Store().GetContent(r.Context(), r.PathValue("id"))
	if errors.Is(err, contentstore.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "content not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromPackage(*pkg, true))
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	runs, err := s.daemon.Store().RecentRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunHistoryResponse{Runs: api.FromRuns(runs)})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		StartedAt:    api.FormatTime(status.StartedAt),
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		LogPath:      status.LogPath,
		BackendURL:   status.BackendURL,
		Pipeline: api.PipelineStatus{
			Running:     status.Run.Running,
			LastError:   status.LastError,
			StageHealth: api.FromHealth(status.StageHealth),
		},
		Checks: api.FromChecks(status.Checks),
	}
	if !status.Run.Empty() {
		current := api.FromSnapshot(status.Run)
		payload.Pipeline.Current = &current
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("%s: %v", message, err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{OK: sent, Message: message, State: api.FromSnapshot(s.daemon.Snapshot())})
}

func parseLogFilter(levels, source string) (eventlog.Filter, error) {
	filter := eventlog.Filter{Source: strings.TrimSpace(source)}
	for _, raw := range strings.Split(levels, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		level, ok := eventlog.ParseLevel(raw)
		if !ok {
			return eventlog.Filter{}, fmt.Errorf("unknown log level %q", raw)
		}
		filter.Levels = append(filter.Levels, level)
	}
	return filter, nil
}

func queryFlag(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logging.NewNop()
}
