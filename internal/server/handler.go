package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vibesql/pgquery/internal/config"
	"github.com/vibesql/pgquery/internal/postgres"
	"github.com/vibesql/pgquery/internal/query"
	"github.com/vibesql/pgquery/internal/version"
)

// MaxRequestBytes bounds the size of an execute request body
const MaxRequestBytes = 1 << 20

// Options configures a Handler. Zero values are usable.
type Options struct {
	Metrics *Metrics
	Logger  *slog.Logger
	// QueryTimeout bounds one invocation, zero means no limit
	QueryTimeout time.Duration
	// Drivers are reported by /healthz
	Drivers []string
}

type Handler struct {
	executor     query.QueryExecutor
	metrics      *Metrics
	logger       *slog.Logger
	queryTimeout time.Duration
	drivers      []string
}

func NewHandler(executor query.QueryExecutor, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	return &Handler{
		executor:     executor,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		queryTimeout: opts.QueryTimeout,
		drivers:      opts.Drivers,
	}
}

// HandleExecute runs one invocation described by the request body, which
// uses the same keys as a params file.
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("request_id", RequestIDFromContext(r.Context())))

	params, err := decodeParams(w, r)
	if err != nil {
		logger.Warn("Rejected execute request", slog.String("error", err.Error()))
		h.writeError(w, logger, err)
		return
	}

	cfg, err := params.Connection()
	if err != nil {
		logger.Warn("Invalid connection parameters", slog.String("error", err.Error()))
		h.writeError(w, logger, err)
		return
	}

	ctx := r.Context()
	if h.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := h.executor.Execute(ctx, cfg, params.Request(), params.CheckMode)
	if err != nil {
		h.metrics.ObserveExecution(string(postgres.KindOf(err)), false, params.CheckMode, time.Since(start))
		logger.Error("Query execution failed",
			slog.String("kind", string(postgres.KindOf(err))),
			slog.String("error", err.Error()),
		)
		h.writeError(w, logger, err)
		return
	}
	h.metrics.ObserveExecution("success", result.Changed, params.CheckMode, time.Since(start))

	if err := WriteSuccess(w, result); err != nil {
		logger.Error("Failed to write response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if werr := WriteError(w, err); werr != nil {
		logger.Error("Failed to write response", slog.String("error", werr.Error()))
	}
}

func decodeParams(w http.ResponseWriter, r *http.Request) (*config.Params, error) {
	body := http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var params config.Params
	if err := dec.Decode(&params); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, NewRequestTooLargeError(tooLarge.Limit)
		}
		return nil, NewInvalidRequestError(err.Error())
	}
	return &params, nil
}

type healthResponse struct {
	Status  string   `json:"status"`
	Version string   `json:"version"`
	Drivers []string `json:"drivers,omitempty"`
}

// HandleHealth reports liveness and the drivers usable by this process
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: version.Get().Version,
		Drivers: h.drivers,
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", slog.String("error", err.Error()))
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/execute", h.HandleExecute)
	r.Get("/healthz", h.HandleHealth)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
}
