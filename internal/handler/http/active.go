package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/matthewtrundle/PremierATX-sub004/internal/loader"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/httputil"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/validator"
)

// ActiveHandler exposes the process-wide active collection view: one loader
// tracking whichever collection the storefront is currently presenting.
type ActiveHandler struct {
	loader *loader.Loader
	logger *slog.Logger
}

// NewActiveHandler creates the active collection HTTP handler.
func NewActiveHandler(l *loader.Loader, logger *slog.Logger) *ActiveHandler {
	return &ActiveHandler{loader: l, logger: logger}
}

// SetActiveRequest is the JSON request body for switching the active collection.
type SetActiveRequest struct {
	Handle       string `json:"handle" validate:"required,min=1"`
	ForceRefresh bool   `json:"force_refresh"`
}

// ActiveState is the JSON view of the loader's state.
type ActiveState struct {
	Handle     string `json:"handle"`
	State      string `json:"state"`
	Products   int    `json:"products"`
	LoadTimeMs int64  `json:"load_time_ms"`
	Retries    int    `json:"retries,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Active handles GET /api/v1/collections/active
func (h *ActiveHandler) Active(w http.ResponseWriter, r *http.Request) {
	state, loadErr, loadTime := h.loader.State()

	view := ActiveState{
		Handle:     h.loader.CurrentHandle(),
		State:      string(state),
		Products:   len(h.loader.Products()),
		LoadTimeMs: loadTime.Milliseconds(),
		Retries:    h.loader.Retries(),
	}
	if loadErr != nil {
		view.Error = loadErr.Error()
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}

// SetActive handles POST /api/v1/collections/active
//
// It loads the requested collection synchronously. If a newer request lands
// while this one is in flight, the superseded load answers 409 and its result
// is discarded.
func (h *ActiveHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	req.Handle = strings.TrimSpace(req.Handle)

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	products, err := h.loader.Load(r.Context(), req.Handle, req.ForceRefresh)
	if err != nil {
		if errors.Is(err, loader.ErrSuperseded) {
			httputil.WriteJSON(w, http.StatusConflict, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "SUPERSEDED", Message: "a newer collection request took over"},
			})
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	_, _, loadTime := h.loader.State()
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: ActiveState{
		Handle:     req.Handle,
		State:      string(loader.StateReady),
		Products:   len(products),
		LoadTimeMs: loadTime.Milliseconds(),
	}})
}
