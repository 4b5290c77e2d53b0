package layers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	CategorySites      = "sites"
	CategoryFacilities = "facilities"
	CategoryLevels     = "levels"
	CategoryUnits      = "units"
	CategoryDetails    = "details"
)

var categories = []string{
	CategorySites,
	CategoryFacilities,
	CategoryLevels,
	CategoryUnits,
	CategoryDetails,
}

// Matcher identifies a layer either by its service layer id or by title.
type Matcher struct {
	LayerID *int
	Title   string
}

func (m Matcher) String() string {
	if m.LayerID != nil {
		return strconv.Itoa(*m.LayerID)
	}
	return m.Title
}

func (m Matcher) matches(title string, layerID int, hasLayerID bool) bool {
	if m.LayerID != nil {
		return hasLayerID && layerID == *m.LayerID
	}
	return m.Title != "" && strings.EqualFold(m.Title, title)
}

func TitleMatcher(title string) Matcher {
	return Matcher{Title: title}
}

func IDMatcher(id int) Matcher {
	return Matcher{LayerID: &id}
}

// Identifiers maps a category to the matchers that place a layer in it.
type Identifiers map[string][]Matcher

func DefaultIdentifiers() Identifiers {
	return Identifiers{
		CategorySites:      {TitleMatcher("Sites")},
		CategoryFacilities: {TitleMatcher("Facilities"), TitleMatcher("Facilities Textured")},
		CategoryLevels:     {TitleMatcher("Levels")},
		CategoryUnits:      {TitleMatcher("Units")},
		CategoryDetails:    {TitleMatcher("Details")},
	}
}

// Configure overrides the matchers of every category named in configured.
// Category keys match case-insensitively; unknown keys are ignored. Values may
// be a single string/number or a list of them.
func (ids Identifiers) Configure(configured map[string]any) error {
	for _, category := range categories {
		for key, raw := range configured {
			if !strings.EqualFold(strings.TrimSpace(key), category) {
				continue
			}
			matchers, err := ParseMatchers(raw)
			if err != nil {
				return fmt.Errorf("layer identifiers %q: %w", key, err)
			}
			ids[category] = matchers
			break
		}
	}
	return nil
}

// ParseMatchers converts decoded config values into matchers. Whole numbers
// become layer id matchers, strings become title matchers.
func ParseMatchers(raw any) ([]Matcher, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]Matcher, 0, len(v))
		for _, entry := range v {
			m, err := parseMatcher(entry)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, nil
	case []string:
		out := make([]Matcher, 0, len(v))
		for _, s := range v {
			out = append(out, TitleMatcher(s))
		}
		return out, nil
	case []int:
		out := make([]Matcher, 0, len(v))
		for _, id := range v {
			out = append(out, IDMatcher(id))
		}
		return out, nil
	default:
		m, err := parseMatcher(v)
		if err != nil {
			return nil, err
		}
		return []Matcher{m}, nil
	}
}

func parseMatcher(v any) (Matcher, error) {
	switch n := v.(type) {
	case string:
		return TitleMatcher(n), nil
	case int:
		return IDMatcher(n), nil
	case int64:
		return IDMatcher(int(n)), nil
	case float64:
		if n != math.Trunc(n) {
			return Matcher{}, fmt.Errorf("layer id %v is not a whole number", n)
		}
		return IDMatcher(int(n)), nil
	default:
		return Matcher{}, fmt.Errorf("unsupported identifier %T", v)
	}
}

func (ids Identifiers) check(category, title string, layerID int, hasLayerID bool) bool {
	for _, m := range ids[category] {
		if m.matches(title, layerID, hasLayerID) {
			return true
		}
	}
	return false
}

// Mapping overrides the field names of the layer with the given title. Keys of
// Mappings are field roles (fields.Role*).
type Mapping struct {
	LayerTitle string            `koanf:"layer_title" json:"layer_title"`
	Mappings   map[string]string `koanf:"mappings" json:"mappings"`
}

func findMappings(mappings []Mapping, title string) map[string]string {
	if title == "" {
		return nil
	}
	for _, m := range mappings {
		if m.LayerTitle != "" && strings.EqualFold(m.LayerTitle, title) {
			return normalizeMappings(m.Mappings)
		}
	}
	return nil
}

func normalizeMappings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for role, name := range in {
		out[strings.ToLower(strings.TrimSpace(role))] = strings.TrimSpace(name)
	}
	return out
}
