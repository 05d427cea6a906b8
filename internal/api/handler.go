package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"autoprofile/internal/engine"
	"autoprofile/internal/manager"
	"autoprofile/internal/param"
	"autoprofile/internal/profile"
	"autoprofile/internal/schedule"
	"autoprofile/internal/storage"
)

// Profiles is the profile write path, implemented by storage.Store.
type Profiles interface {
	List(ctx context.Context) ([]profile.Profile, error)
	Get(ctx context.Context, id string) (profile.Profile, error)
	Create(ctx context.Context, p profile.Profile) (profile.Profile, error)
	Update(ctx context.Context, id string, p profile.Profile) (profile.Profile, error)
	Delete(ctx context.Context, id string) error
	Reorder(ctx context.Context, ids []string) error
	Validate(p profile.Profile) profile.Result
	Conflict(ctx context.Context, p profile.Profile, excludeID string) (*profile.Profile, error)
}

// Controller drives the switching loop, implemented by manager.Manager.
type Controller interface {
	Status() manager.Status
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	ManualActivate(ctx context.Context, id string) error
	SetEnabled(ctx context.Context, enabled bool) error
}

// Parameters is the observer push interface, implemented by param.Source.
type Parameters interface {
	Registry() *param.Registry
	Snapshot() param.Snapshot
	Set(name, value string) error
	Clear(name string) error
}

type Handler struct {
	Profiles Profiles
	Ctl      Controller
	Params   Parameters
	Eng      *engine.Engine
	Now      func() time.Time
}

func NewHandler(profiles Profiles, ctl Controller, params Parameters, eng *engine.Engine) *Handler {
	return &Handler{Profiles: profiles, Ctl: ctl, Params: params, Eng: eng, Now: time.Now}
}

type errorBody struct {
	Error         string      `json:"error"`
	ConflictsWith *profileRef `json:"conflicts_with,omitempty"`
}

type profileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type profileView struct {
	profile.Profile
	Specificity int `json:"specificity"`
}

func view(p profile.Profile) profileView {
	return profileView{Profile: p, Specificity: p.Specificity()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// fail maps domain errors onto status codes.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *storage.ValidationError
		cerr *storage.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, verr.Result)
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusConflict, errorBody{
			Error:         err.Error(),
			ConflictsWith: &profileRef{ID: cerr.With.ID, Name: cerr.With.Name},
		})
	case errors.Is(err, storage.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, manager.ErrUnknownProfile),
		errors.Is(err, param.ErrUnknownParameter):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, param.ErrInvalidValue):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, manager.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Profiles.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]profileView, len(ps))
	for i, p := range ps {
		out[i] = view(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.Profiles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(p))
}

func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var p profile.Profile
	if !decode(w, r, &p) {
		return
	}
	created, err := h.Profiles.Create(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/profiles/"+created.ID)
	writeJSON(w, http.StatusCreated, view(created))
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var p profile.Profile
	if !decode(w, r, &p) {
		return
	}
	updated, err := h.Profiles.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(updated))
}

func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.Profiles.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type validateResponse struct {
	profile.Result
	Specificity   int         `json:"specificity"`
	ConflictsWith *profileRef `json:"conflicts_with,omitempty"`
}

// ValidateProfile checks a draft without saving it. ?exclude=<id> skips the
// stored version of a profile being edited.
func (h *Handler) ValidateProfile(w http.ResponseWriter, r *http.Request) {
	var p profile.Profile
	if !decode(w, r, &p) {
		return
	}
	resp := validateResponse{Result: h.Profiles.Validate(p), Specificity: p.Specificity()}
	if resp.Valid {
		other, err := h.Profiles.Conflict(r.Context(), p, r.URL.Query().Get("exclude"))
		if err != nil {
			fail(w, r, err)
			return
		}
		if other != nil {
			resp.ConflictsWith = &profileRef{ID: other.ID, Name: other.Name}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ReorderProfiles(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := h.Profiles.Reorder(r.Context(), body.IDs); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateProfile applies a profile as a manual override, pausing automatic
// switching.
func (h *Handler) ActivateProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.Ctl.ManualActivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.Ctl.Status())
}

type parametersResponse struct {
	Definitions []param.Definition `json:"definitions"`
	Values      map[string]string  `json:"values"`
}

func (h *Handler) ListParameters(w http.ResponseWriter, _ *http.Request) {
	reg := h.Params.Registry()
	names := reg.Names()
	defs := make([]param.Definition, 0, len(names))
	for _, n := range names {
		if d, ok := reg.Lookup(n); ok {
			defs = append(defs, d)
		}
	}
	writeJSON(w, http.StatusOK, parametersResponse{Definitions: defs, Values: h.Params.Snapshot().Values()})
}

// SetParameter records an observed value. A null value marks it unknown.
func (h *Handler) SetParameter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value *string `json:"value"`
	}
	if !decode(w, r, &body) {
		return
	}
	name := chi.URLParam(r, "name")
	var err error
	if body.Value == nil {
		err = h.Params.Clear(name)
	} else {
		err = h.Params.Set(name, *body.Value)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type evaluateResponse struct {
	Profile     *profileView `json:"profile"`
	Candidates  int          `json:"candidates"`
	Changed     bool         `json:"changed"`
	EvaluatedAt time.Time    `json:"evaluated_at"`
}

// Evaluate previews the current decision without applying it.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Profiles.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	now := h.Now()
	d := h.Eng.Evaluate(ps, engine.Request{
		Snapshot: h.Params.Snapshot(),
		Now:      now,
		ActiveID: h.Ctl.Status().ActiveProfile,
	})
	resp := evaluateResponse{Candidates: d.Candidates, Changed: d.Changed, EvaluatedAt: now}
	if d.Profile != nil {
		v := view(*d.Profile)
		resp.Profile = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

type scheduleResponse struct {
	ID                   string             `json:"id"`
	Schedule             *schedule.Schedule `json:"schedule"`
	Active               bool               `json:"active"`
	SecondsUntilBoundary *int64             `json:"seconds_until_boundary,omitempty"`
}

// ScheduleState reports whether a profile's schedule is active now and when
// it next opens or closes.
func (h *Handler) ScheduleState(w http.ResponseWriter, r *http.Request) {
	p, err := h.Profiles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	resp := scheduleResponse{ID: p.ID, Schedule: p.Schedule}
	if p.Schedule != nil {
		now := h.Now()
		resp.Active = schedule.IsActive(*p.Schedule, now)
		if d, ok := schedule.UntilNextBoundary(*p.Schedule, now); ok {
			secs := int64(d.Round(time.Second) / time.Second)
			resp.SecondsUntilBoundary = &secs
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Ctl.Status())
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.Ctl.Resume(r.Context()); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Ctl.Status())
}

func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.Ctl.Pause(r.Context()); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Ctl.Status())
}

func (h *Handler) SetAuto(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	if err := h.Ctl.SetEnabled(r.Context(), *body.Enabled); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Ctl.Status())
}
