// Package levels holds the facility → level hierarchy built from the level
// table of an indoor dataset.
package levels

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"floorfilter/internal/fields"
)

// Row is one record of the level table keyed by field name.
type Row = map[string]any

// Level is a single floor of a facility. LevelNumber and VerticalOrder are NaN
// when the source row did not carry a numeric value.
type Level struct {
	FacilityID     string  `json:"facility_id"`
	FacilityName   string  `json:"facility_name"`
	LevelID        string  `json:"level_id"`
	LevelName      string  `json:"level_name"`
	LevelShortName string  `json:"level_short_name"`
	LevelNumber    float64 `json:"-"`
	VerticalOrder  float64 `json:"-"`
}

type Facility struct {
	FacilityID            string
	FacilityName          string
	Levels                []*Level
	LevelsByID            map[string]*Level
	LevelsByVerticalOrder map[float64]*Level
	BaseLevel             *Level
}

// Catalog is read-only once built. A reload builds a new Catalog.
type Catalog struct {
	Facilities     []*Facility
	FacilitiesByID map[string]*Facility
}

// Build groups level rows by facility. Rows without a non-empty string
// facility id are skipped.
func Build(rows []Row, log zerolog.Logger) *Catalog {
	c := &Catalog{FacilitiesByID: map[string]*Facility{}}

	skipped := 0
	for _, row := range rows {
		if row == nil {
			skipped++
			continue
		}
		facilityID, ok := fields.String(row, fields.RoleFacilityID)
		if !ok || facilityID == "" {
			skipped++
			continue
		}
		facilityName, _ := fields.String(row, fields.RoleFacilityName)
		levelID, _ := fields.String(row, fields.RoleLevelID)
		levelName, _ := fields.String(row, fields.RoleName)
		shortName, _ := fields.String(row, fields.RoleNameShort)
		levelNumber, _ := fields.Number(row, fields.RoleLevelNumber)
		vo, _ := fields.Number(row, fields.RoleVerticalOrder)

		f, ok := c.FacilitiesByID[facilityID]
		if !ok {
			f = &Facility{
				FacilityID:            facilityID,
				FacilityName:          facilityName,
				LevelsByID:            map[string]*Level{},
				LevelsByVerticalOrder: map[float64]*Level{},
			}
			c.Facilities = append(c.Facilities, f)
			c.FacilitiesByID[facilityID] = f
		}

		l := &Level{
			FacilityID:     facilityID,
			FacilityName:   facilityName,
			LevelID:        levelID,
			LevelName:      levelName,
			LevelShortName: shortName,
			LevelNumber:    levelNumber,
			VerticalOrder:  vo,
		}
		f.Levels = append(f.Levels, l)
		f.LevelsByID[levelID] = l
		if fields.IsFinite(vo) {
			f.LevelsByVerticalOrder[vo] = l
		}
		considerBaseLevel(f, l)
	}

	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Msg("level rows without a facility id were skipped")
	}

	sort.SliceStable(c.Facilities, func(i, j int) bool {
		return c.Facilities[i].FacilityName < c.Facilities[j].FacilityName
	})
	for _, f := range c.Facilities {
		sortLevels(f.Levels)
	}

	log.Debug().Int("facilities", len(c.Facilities)).Int("rows", len(rows)).Msg("level catalog built")
	return c
}

// considerBaseLevel keeps the smallest non-negative vertical order, falling
// back to the negative vertical order closest to zero.
func considerBaseLevel(f *Facility, l *Level) {
	vo := l.VerticalOrder
	if !fields.IsFinite(vo) {
		return
	}
	if f.BaseLevel == nil {
		f.BaseLevel = l
		return
	}
	base := f.BaseLevel.VerticalOrder
	if vo >= 0 {
		if base < 0 || vo < base {
			f.BaseLevel = l
		}
		return
	}
	if base < 0 && vo > base {
		f.BaseLevel = l
	}
}

func sortLevels(levels []*Level) {
	sort.SliceStable(levels, func(i, j int) bool {
		a, b := levels[i].VerticalOrder, levels[j].VerticalOrder
		if math.IsNaN(a) {
			return false
		}
		if math.IsNaN(b) {
			return true
		}
		return a < b
	})
}

func (c *Catalog) HasData() bool {
	return c != nil && len(c.FacilitiesByID) > 0
}

func (c *Catalog) Facility(facilityID string) (*Facility, bool) {
	if c == nil || facilityID == "" {
		return nil, false
	}
	f, ok := c.FacilitiesByID[facilityID]
	return f, ok
}

func (c *Catalog) Level(facilityID, levelID string) (*Level, bool) {
	f, ok := c.Facility(facilityID)
	if !ok || levelID == "" {
		return nil, false
	}
	l, ok := f.LevelsByID[levelID]
	return l, ok
}

func (c *Catalog) ValidateFacilityID(facilityID string) (string, bool) {
	if _, ok := c.Facility(facilityID); !ok {
		return "", false
	}
	return facilityID, true
}

func (c *Catalog) ValidateLevelID(facilityID, levelID string) (string, bool) {
	if _, ok := c.Level(facilityID, levelID); !ok {
		return "", false
	}
	return levelID, true
}

func (c *Catalog) BaseLevel(facilityID string) (*Level, bool) {
	f, ok := c.Facility(facilityID)
	if !ok || f.BaseLevel == nil {
		return nil, false
	}
	return f.BaseLevel, true
}

func (c *Catalog) BaseLevelID(facilityID string) (string, bool) {
	l, ok := c.BaseLevel(facilityID)
	if !ok {
		return "", false
	}
	return l.LevelID, true
}

// GroundLevel returns the facility's level with vertical order zero.
func (f *Facility) GroundLevel() (*Level, bool) {
	if f == nil {
		return nil, false
	}
	l, ok := f.LevelsByVerticalOrder[0]
	return l, ok
}
