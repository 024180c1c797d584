// Package intake serves the HTTP endpoints that start intake and rerun
// workflows.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/submission-intake/internal/metrics"
	"github.com/sells-group/submission-intake/internal/model"
	"github.com/sells-group/submission-intake/internal/poll"
	"github.com/sells-group/submission-intake/internal/workflow"
)

// Orchestrator starts workflows and reports their progress.
type Orchestrator interface {
	StartIntake(ctx context.Context, in workflow.IntakeInput) (string, error)
	StartRerun(ctx context.Context, in workflow.RerunInput) (string, error)
	Describe(ctx context.Context, workflowID string) (*workflow.Execution, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config configures the intake handler.
type Config struct {
	Orchestrator Orchestrator
	// WaitInterval and WaitAttempts bound ?wait=true requests.
	WaitInterval   time.Duration
	WaitAttempts   int
	MaxUploadBytes int64
	AllowedOrigins []string
	HealthChecks   map[string]HealthCheck
	// Sleep is used between status checks. Defaults to poll.ContextSleeper.
	Sleep poll.Sleeper
}

const (
	defaultWaitInterval   = 10 * time.Second
	defaultWaitAttempts   = 60
	defaultMaxUploadBytes = 50 << 20

	startedMessage = "Workflow has started. Please wait for the response."
)

type server struct {
	cfg Config
}

// NewHandler returns the intake router.
func NewHandler(cfg Config) http.Handler {
	if cfg.WaitInterval <= 0 {
		cfg.WaitInterval = defaultWaitInterval
	}
	if cfg.WaitAttempts <= 0 {
		cfg.WaitAttempts = defaultWaitAttempts
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = poll.ContextSleeper
	}
	s := &server{cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/start-workflow", s.startWorkflow)
	r.Post("/rerun-workflow", s.rerunWorkflow)
	return r
}

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type startedBody struct {
	Message    string `json:"message"`
	WorkflowID string `json:"Workflow ID"`
}

type completedBody struct {
	WorkflowID string      `json:"workflow_id"`
	Status     string      `json:"status"`
	Result     model.Value `json:"result"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("intake: write response", zap.Error(err))
	}
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.cfg.HealthChecks))
	status := http.StatusOK
	for name, check := range s.cfg.HealthChecks {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	body := map[string]any{"status": "ok"}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	writeJSON(w, status, body)
}

func (s *server) startWorkflow(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "file too large", Details: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "file is required", Details: err.Error()})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "file is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "read file", Details: err.Error()})
		return
	}
	threadID, err := optionalInt(r.FormValue("thread_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "thread_id must be an integer"})
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	in := workflow.IntakeInput{
		CaseID:      r.FormValue("case_id"),
		Filename:    header.Filename,
		ContentType: contentType,
		Content:     content,
		ThreadID:    threadID,
	}
	id, err := s.cfg.Orchestrator.StartIntake(r.Context(), in)
	if err != nil {
		zap.L().Error("intake: start workflow failed", zap.String("filename", in.Filename), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to trigger workflow", Details: err.Error()})
		return
	}
	zap.L().Info("intake: workflow started",
		zap.String("workflow_id", id),
		zap.String("filename", in.Filename),
		zap.Int("bytes", len(content)),
	)

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		writeJSON(w, http.StatusOK, startedBody{Message: startedMessage, WorkflowID: id})
		return
	}
	s.waitFor(r.Context(), w, id)
}

// waitFor checks the workflow every WaitInterval, up to WaitAttempts
// times, and writes its outcome.
func (s *server) waitFor(ctx context.Context, w http.ResponseWriter, id string) {
	log := zap.L().With(zap.String("workflow_id", id))
	for attempt := 1; attempt <= s.cfg.WaitAttempts; attempt++ {
		exec, err := s.cfg.Orchestrator.Describe(ctx, id)
		if err != nil {
			log.Error("intake: track workflow failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Error tracking workflow", Details: err.Error()})
			return
		}
		log.Debug("intake: workflow status", zap.Int("attempt", attempt), zap.String("status", exec.Status))

		switch {
		case exec.Status == workflow.ExecutionCompleted:
			writeJSON(w, http.StatusOK, completedBody{WorkflowID: id, Status: exec.Status, Result: exec.Result})
			return
		case exec.Done():
			writeJSON(w, http.StatusInternalServerError, errorBody{
				Error:   fmt.Sprintf("Workflow %s", exec.Status),
				Details: exec.Failure,
			})
			return
		}

		if attempt == s.cfg.WaitAttempts {
			break
		}
		if err := s.cfg.Sleep(ctx, s.cfg.WaitInterval); err != nil {
			log.Warn("intake: client went away while waiting", zap.Error(err))
			return
		}
	}
	writeJSON(w, http.StatusRequestTimeout, errorBody{
		Error:   "Workflow did not complete in time",
		Details: map[string]any{"workflow_id": id, "checks": s.cfg.WaitAttempts},
	})
}

type rerunRequest struct {
	CaseID       string      `json:"case_id"`
	ModifiedData model.Value `json:"modified_data"`
	ThreadID     int         `json:"thread_id,omitempty"`
}

func (s *server) rerunWorkflow(w http.ResponseWriter, r *http.Request) {
	var req rerunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Details: err.Error()})
		return
	}
	if req.CaseID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "case_id is required"})
		return
	}
	if req.ModifiedData.Kind() != model.KindObject && !req.ModifiedData.IsNull() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "modified_data must be an object"})
		return
	}

	id, err := s.cfg.Orchestrator.StartRerun(r.Context(), workflow.RerunInput{
		CaseID:       req.CaseID,
		ModifiedData: req.ModifiedData,
		ThreadID:     req.ThreadID,
	})
	if err != nil {
		zap.L().Error("intake: start rerun failed", zap.String("case_id", req.CaseID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to trigger workflow", Details: err.Error()})
		return
	}
	zap.L().Info("intake: rerun started", zap.String("workflow_id", id), zap.String("case_id", req.CaseID))
	writeJSON(w, http.StatusOK, startedBody{Message: startedMessage, WorkflowID: id})
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
