package expression

import (
	"strconv"
	"strings"

	"floorfilter/internal/fields"
	"floorfilter/internal/layers"
	"floorfilter/internal/levels"
)

const (
	// All matches every feature; a layer given All is left unfiltered.
	All = "1=1"
	// None matches no feature.
	None = "1=2"

	// outdoorsLocationType marks features that lie outside any facility.
	outdoorsLocationType = 0
)

// IsNoFilter reports whether where places no restriction on a layer.
func IsNoFilter(where string) bool {
	w := strings.TrimSpace(where)
	return w == "" || w == All
}

// Quote renders s as a SQL string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// candidate pairs a field role with the value a matching feature must carry.
// value is either a string or a float64.
type candidate struct {
	role  string
	value any
}

func facilityCandidates(f *levels.Facility) []candidate {
	if f == nil {
		return nil
	}
	return []candidate{
		{role: fields.RoleFacilityID, value: f.FacilityID},
		{role: fields.RoleFacilityName, value: f.FacilityName},
	}
}

// levelCandidates lists level attributes in match priority order.
func levelCandidates(l *levels.Level) []candidate {
	if l == nil {
		return nil
	}
	return []candidate{
		{role: fields.RoleLevelID, value: l.LevelID},
		{role: fields.RoleLevelName, value: l.LevelName},
		{role: fields.RoleLevelNumber, value: l.LevelNumber},
		{role: fields.RoleVerticalOrder, value: l.VerticalOrder},
		{role: fields.RoleNameShort, value: l.LevelShortName},
	}
}

// compare builds "(field op literal)" for the first candidate whose field
// resolves on the layer and whose value is usable for that field's type.
func compare(info *layers.Info, cands []candidate, op string) string {
	for _, c := range cands {
		f, ok := info.Resolve(c.role)
		if !ok {
			continue
		}
		lit, ok := literal(f, c.value)
		if !ok {
			continue
		}
		return "(" + f.Name + " " + op + " " + lit + ")"
	}
	return ""
}

func literal(f fields.Field, v any) (string, bool) {
	switch x := v.(type) {
	case string:
		if f.IsString() && x != "" {
			return Quote(x), true
		}
	case float64:
		if f.IsNumeric() && fields.IsFinite(x) {
			return FormatNumber(x), true
		}
	}
	return "", false
}

func outdoors(info *layers.Info) string {
	if info.LocationTypeField == "" {
		return ""
	}
	return "(" + info.LocationTypeField + " = " + strconv.Itoa(outdoorsLocationType) + ")"
}

func and(a, b string) string {
	return a + " AND " + b
}

func or(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " OR ")
}
