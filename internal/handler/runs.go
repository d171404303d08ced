package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codeexec/internal/apperror"
)

type RunHandler struct {
	svc    ExecutionService
	logger *slog.Logger
}

func NewRunHandler(svc ExecutionService, logger *slog.Logger) *RunHandler {
	return &RunHandler{svc: svc, logger: logger}
}

// HandleList handles GET /api/runs?limit=&offset=&executor=.
func (h *RunHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	runs, err := h.svc.ListRuns(r.Context(), q.Get("executor"), limit, offset)
	if err != nil {
		h.logger.Error("failed to list runs", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleGet handles GET /api/runs/{id}.
func (h *RunHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
