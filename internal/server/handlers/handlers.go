// Package handlers implements HTTP request handlers for the rollcall API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/rollcall/internal/job"
	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// StreakRunner runs the streak engine over all pending days.
type StreakRunner interface {
	Run(ctx context.Context, actorID string) (*types.RunSummary, error)
}

// BackfillSweeper materializes default absences.
type BackfillSweeper interface {
	Sweep(ctx context.Context) (*types.BackfillSummary, error)
}

// NightlyRunner runs the backfill sweep followed by the streak engine.
type NightlyRunner interface {
	Run(ctx context.Context, actorID string) (*job.Report, error)
}

// Deps holds handler dependencies. Runners left nil disable their trigger
// endpoints.
type Deps struct {
	Provider provider.Provider
	Streak   StreakRunner
	Backfill BackfillSweeper
	Nightly  NightlyRunner
	Location *time.Location
	Logger   *slog.Logger
	Now      func() time.Time
}

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	provider provider.Provider
	streak   StreakRunner
	backfill BackfillSweeper
	nightly  NightlyRunner
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a new Handlers instance.
func New(deps Deps) *Handlers {
	h := &Handlers{
		provider: deps.Provider,
		streak:   deps.Streak,
		backfill: deps.Backfill,
		nightly:  deps.Nightly,
		loc:      deps.Location,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// validID accepts identifiers safe to embed in storage keys.
var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// actorID names an API-triggered run in the lease holder field.
func actorID() string {
	return "api-" + ulid.Make().String()
}

// writeJSON encodes v with the given status.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// decodeBody decodes a JSON request body, reporting oversize bodies and
// malformed JSON as 400.
func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.writeError(w, http.StatusBadRequest, "request body too large", nil)
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", nil)
		return false
	}
	return true
}
