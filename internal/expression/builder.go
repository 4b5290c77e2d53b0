// Package expression turns a facility/level selection into one definition
// expression per classified layer.
package expression

import (
	"github.com/rs/zerolog"

	"floorfilter/internal/layers"
	"floorfilter/internal/levels"
)

// Selection is the active facility and level. An empty FacilityID means the
// selection is cleared.
type Selection struct {
	FacilityID string `json:"facility_id"`
	LevelID    string `json:"level_id"`
}

func (s Selection) IsCleared() bool {
	return s.FacilityID == ""
}

// Mode carries the view and display options that shape expressions.
type Mode struct {
	Is3D                 bool
	ShowAllFloorPlans2D  bool
	ToggleFacilityShells bool
}

// Entry is the expression computed for one classified layer. Where is empty
// when the layer should carry no filter.
type Entry struct {
	Key   string
	Info  *layers.Info
	Where string
}

func (e Entry) IsNoFilter() bool {
	return IsNoFilter(e.Where)
}

type Result struct {
	// Selection is the selection the expressions were built for, after
	// unknown ids were dropped and a missing 2D level defaulted to the base
	// level.
	Selection Selection
	Entries   []Entry
	ByKey     map[string]string
}

type Builder struct {
	log zerolog.Logger
}

func NewBuilder(log zerolog.Logger) *Builder {
	return &Builder{log: log}
}

// state is the per-build view of the selection against the catalog.
type state struct {
	catalog  *levels.Catalog
	mode     Mode
	facility *levels.Facility
	level    *levels.Level
}

// Build computes expressions for every facilities or level-aware entry of idx,
// in draw order. It has no side effects and returns the same result for the
// same inputs.
func (b *Builder) Build(idx *layers.Index, catalog *levels.Catalog, sel Selection, mode Mode) *Result {
	st := resolve(catalog, sel, mode)
	res := &Result{ByKey: map[string]string{}}
	if st.facility != nil {
		res.Selection.FacilityID = st.facility.FacilityID
	}
	if st.level != nil {
		res.Selection.LevelID = st.level.LevelID
	}
	if idx == nil {
		return res
	}

	above := false
	for _, info := range idx.Entries {
		if !info.IsFacilities && !info.IsLevelAware {
			continue
		}
		var where string
		if mode.Is3D {
			where = st.where3D(info)
		} else {
			where = st.where2D(info, above)
			if info == idx.FacilitiesInfo {
				above = true
			}
		}
		res.Entries = append(res.Entries, Entry{Key: info.ID, Info: info, Where: where})
		res.ByKey[info.ID] = where
	}

	b.log.Debug().
		Str("facility_id", res.Selection.FacilityID).
		Str("level_id", res.Selection.LevelID).
		Bool("is_3d", mode.Is3D).
		Int("layers", len(res.Entries)).
		Msg("expressions built")
	return res
}

func resolve(catalog *levels.Catalog, sel Selection, mode Mode) *state {
	st := &state{catalog: catalog, mode: mode}
	f, ok := catalog.Facility(sel.FacilityID)
	if !ok {
		return st
	}
	st.facility = f
	if l, ok := catalog.Level(sel.FacilityID, sel.LevelID); ok {
		st.level = l
	} else if !mode.Is3D {
		st.level = f.BaseLevel
	}
	return st
}

// shell handles the facilities layer when facility shells are toggled: the
// active facility's footprint is hidden, every other one stays visible.
func (st *state) shell(info *layers.Info) (string, bool) {
	if !st.mode.ToggleFacilityShells || !info.IsFacilities {
		return "", false
	}
	if st.facility == nil {
		return "", true
	}
	return compare(info, facilityCandidates(st.facility), "<>"), true
}

// strict returns "(facility) AND (level)" for the active selection, or "" when
// either side cannot be expressed on the layer.
func (st *state) strict(info *layers.Info) string {
	if st.facility == nil || st.level == nil {
		return ""
	}
	fac := compare(info, facilityCandidates(st.facility), "=")
	lvl := compare(info, levelCandidates(st.level), "=")
	if fac == "" || lvl == "" {
		return ""
	}
	return and(fac, lvl)
}

func (st *state) where2D(info *layers.Info, above bool) string {
	if where, ok := st.shell(info); ok {
		return where
	}
	if !info.IsLevelAware {
		return ""
	}
	showOthers := above && !info.RequiresFacilityMode && st.mode.ShowAllFloorPlans2D

	if strict := st.strict(info); strict != "" {
		parts := []string{strict}
		if showOthers {
			parts = append(parts, st.groundFloors(info)...)
		}
		return or(append(parts, outdoors(info))...)
	}

	// Cleared, or the selection cannot be expressed on this layer.
	if above && !info.RequiresFacilityMode {
		if showOthers {
			if ground := st.groundFloors(info); len(ground) > 0 {
				return or(append(ground, outdoors(info))...)
			}
		}
		return All
	}
	if out := outdoors(info); out != "" {
		return out
	}
	return None
}

// groundFloors returns one "((facility) AND (level))" clause per inactive
// facility that has a level at vertical order zero.
func (st *state) groundFloors(info *layers.Info) []string {
	if st.catalog == nil {
		return nil
	}
	var out []string
	for _, f := range st.catalog.Facilities {
		if f == st.facility {
			continue
		}
		ground, ok := f.GroundLevel()
		if !ok {
			continue
		}
		fac := compare(info, facilityCandidates(f), "=")
		lvl := compare(info, levelCandidates(ground), "=")
		if fac == "" || lvl == "" {
			continue
		}
		out = append(out, "("+and(fac, lvl)+")")
	}
	return out
}

func (st *state) where3D(info *layers.Info) string {
	if where, ok := st.shell(info); ok {
		return where
	}
	if !info.IsLevelAware {
		return ""
	}
	strict := st.strict(info)
	if strict == "" {
		return ""
	}
	others := compare(info, facilityCandidates(st.facility), "<>")
	return or(strict, others, outdoors(info))
}
