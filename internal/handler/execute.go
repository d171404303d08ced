package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codeexec/internal/apperror"
	"github.com/sakif/codeexec/internal/auth"
	"github.com/sakif/codeexec/internal/executor"
	"github.com/sakif/codeexec/internal/model"
	"github.com/sakif/codeexec/internal/service"
)

// Headers a caller may use to tag the invocation that produced the code.
const (
	HeaderAgentName = "X-Agent-Name"
	HeaderSessionID = "X-Session-ID"
)

// maxBodyBytes bounds request bodies; the service applies the finer
// per-snippet limit.
const maxBodyBytes = 8 << 20

// ExecutionService is what the handlers need from the service layer.
type ExecutionService interface {
	Executors() []service.ExecutorInfo
	Execute(ctx context.Context, executorName, code string) (*model.Run, error)
	ExecuteBatch(ctx context.Context, executorName string, codes []string) ([]model.Run, error)
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, executorName string, limit, offset int) ([]model.Run, error)
}

type ExecuteHandler struct {
	svc    ExecutionService
	logger *slog.Logger
}

func NewExecuteHandler(svc ExecutionService, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		svc:    svc,
		logger: logger,
	}
}

type executeRequest struct {
	Code *string `json:"code"`
}

type batchRequest struct {
	Codes []string `json:"codes"`
}

// HandleListExecutors handles GET /api/executors.
func (h *ExecuteHandler) HandleListExecutors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Executors())
}

// HandleExecute handles POST /api/executors/{name}/execute.
//
// The response is 200 whenever the code ran, including when the program
// itself failed; inspect exitCode and stderr for that.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	if req.Code == nil {
		writeError(w, apperror.ValidationFailed("code", "code is required"))
		return
	}

	run, err := h.svc.Execute(invocationContext(r), chi.URLParam(r, "name"), *req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleBatch handles POST /api/executors/{name}/batch.
func (h *ExecuteHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		h.logger.Warn("invalid batch request body", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	runs, err := h.svc.ExecuteBatch(invocationContext(r), chi.URLParam(r, "name"), req.Codes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// invocationContext attaches the caller identity and agent headers to the
// request context.
func invocationContext(r *http.Request) context.Context {
	inv := executor.Invocation{
		AgentName: r.Header.Get(HeaderAgentName),
		SessionID: r.Header.Get(HeaderSessionID),
	}
	if caller, ok := auth.CallerFromContext(r.Context()); ok {
		inv.Caller = caller
	}
	return executor.WithInvocation(r.Context(), inv)
}
