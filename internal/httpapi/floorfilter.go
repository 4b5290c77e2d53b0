package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"floorfilter/internal/apply"
	"floorfilter/internal/engine"
	"floorfilter/internal/expression"
	"floorfilter/internal/fields"
	"floorfilter/internal/layers"
	"floorfilter/internal/levels"
)

type levelDTO struct {
	LevelID        string   `json:"level_id"`
	LevelName      string   `json:"level_name"`
	LevelShortName string   `json:"level_short_name,omitempty"`
	LevelNumber    *float64 `json:"level_number"`
	VerticalOrder  *float64 `json:"vertical_order"`
}

type facilityDTO struct {
	FacilityID   string         `json:"facility_id"`
	FacilityName string         `json:"facility_name"`
	BaseLevelID  *string        `json:"base_level_id"`
	Levels       []levelDTO     `json:"levels"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

type layerDTO struct {
	*layers.Info
	Kind string `json:"kind"`
}

type selectionDTO struct {
	FacilityID *string `json:"facility_id"`
	LevelID    *string `json:"level_id"`
	Is3D       bool    `json:"is_3d"`
}

type expressionDTO struct {
	Key        string `json:"key"`
	Title      string `json:"title"`
	Where      string `json:"where"`
	Expression string `json:"expression"`
}

type selectionRequest struct {
	FacilityID string `json:"facility_id"`
	LevelID    string `json:"level_id"`
	ObjectID   *int64 `json:"object_id"`
}

func finitePtr(v float64) *float64 {
	if !fields.IsFinite(v) {
		return nil
	}
	return &v
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (h *Handler) facilityToDTO(f *levels.Facility) facilityDTO {
	out := facilityDTO{
		FacilityID:   f.FacilityID,
		FacilityName: f.FacilityName,
		Levels:       make([]levelDTO, 0, len(f.Levels)),
	}
	if f.BaseLevel != nil {
		out.BaseLevelID = stringPtr(f.BaseLevel.LevelID)
	}
	for _, l := range f.Levels {
		out.Levels = append(out.Levels, levelDTO{
			LevelID:        l.LevelID,
			LevelName:      l.LevelName,
			LevelShortName: l.LevelShortName,
			LevelNumber:    finitePtr(l.LevelNumber),
			VerticalOrder:  finitePtr(l.VerticalOrder),
		})
	}
	if feature, ok := h.engine.Facilities().FindByID(f.FacilityID); ok {
		out.Attributes = feature.Attributes
	}
	return out
}

func (h *Handler) selectionToDTO(sel expression.Selection) selectionDTO {
	return selectionDTO{
		FacilityID: stringPtr(sel.FacilityID),
		LevelID:    stringPtr(sel.LevelID),
		Is3D:       h.engine.Mode().Is3D,
	}
}

func (h *Handler) handleListFacilities(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLoaded(w) {
		return
	}
	catalog := h.engine.Catalog()
	out := make([]facilityDTO, 0, len(catalog.Facilities))
	for _, f := range catalog.Facilities {
		out = append(out, h.facilityToDTO(f))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"facilities": out})
}

func (h *Handler) handleGetFacility(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLoaded(w) {
		return
	}
	id := chi.URLParam(r, "id")
	f, ok := h.engine.Catalog().Facility(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "facility not found", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, h.facilityToDTO(f))
}

func (h *Handler) handleListLayers(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLoaded(w) {
		return
	}
	idx := h.engine.Index()
	out := make([]layerDTO, 0, idx.Len())
	if idx != nil {
		for _, info := range idx.Entries {
			out = append(out, layerDTO{Info: info, Kind: info.Kind.String()})
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"layers": out})
}

func (h *Handler) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLoaded(w) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.selectionToDTO(h.engine.Active()))
}

func (h *Handler) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLoaded(w) {
		return
	}

	var req selectionRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON body", map[string]any{"error": err.Error()})
		return
	}
	req.FacilityID = strings.TrimSpace(req.FacilityID)
	req.LevelID = strings.TrimSpace(req.LevelID)

	if req.ObjectID != nil && req.FacilityID != "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "object_id and facility_id are mutually exclusive", nil)
		return
	}
	if req.ObjectID == nil && req.FacilityID == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "facility_id or object_id is required", nil)
		return
	}

	var (
		sel expression.Selection
		err error
	)
	if req.ObjectID != nil {
		sel, err = h.engine.SelectByObjectID(r.Context(), *req.ObjectID)
	} else {
		if _, ok := h.engine.Catalog().Facility(req.FacilityID); !ok {
			h.writeError(w, http.StatusNotFound, "not_found", "facility not found", nil)
			return
		}
		sel, err = h.engine.Select(r.Context(), req.FacilityID, req.LevelID)
	}
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.selectionToDTO(sel))
}

func (h *Handler) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLoaded(w) {
		return
	}
	if err := h.engine.Clear(r.Context()); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListExpressions(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLoaded(w) {
		return
	}
	res := h.engine.Expressions()
	out := []expressionDTO{}
	if res != nil {
		for _, e := range res.Entries {
			dto := expressionDTO{Key: e.Key, Where: e.Where}
			if e.Info != nil {
				dto.Title = e.Info.Title
				dto.Expression = apply.Compose(e.Info.OriginalExpression, e.Where)
			}
			out = append(out, dto)
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"expressions": out})
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotLoaded):
		h.writeError(w, http.StatusServiceUnavailable, "not_loaded", "floor filter not loaded", nil)
	case errors.Is(err, engine.ErrUnknownFacility):
		h.writeError(w, http.StatusNotFound, "not_found", "facility not found", map[string]any{"error": err.Error()})
	default:
		h.log.Error().Err(err).Msg("selection failed")
		h.writeError(w, http.StatusInternalServerError, "internal", "failed to apply selection", nil)
	}
}

func (h *Handler) handleGetWebMap(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLoaded(w) {
		return
	}
	if h.webmap == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "web map not available", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, h.webmap.Document())
}
