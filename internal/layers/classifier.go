// Package layers classifies map layers into the roles the floor filter cares
// about (sites, facilities, levels, units, details) and records which of them
// can be filtered by facility and level.
package layers

import (
	"fmt"

	"github.com/rs/zerolog"

	"floorfilter/internal/fields"
)

// Info describes one classified layer, or one sub-layer of a map-image
// service. It is written once by Classify and read-only afterwards.
type Info struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Kind  Kind   `json:"-"`

	IsSites              bool `json:"is_sites"`
	IsFacilities         bool `json:"is_facilities"`
	IsLevels             bool `json:"is_levels"`
	IsUnits              bool `json:"is_units"`
	IsDetails            bool `json:"is_details"`
	IsLevelAware         bool `json:"is_level_aware"`
	RequiresFacilityMode bool `json:"requires_facility_mode"`

	FacilityIDField   string `json:"facility_id_field,omitempty"`
	LevelIDField      string `json:"level_id_field,omitempty"`
	LocationTypeField string `json:"location_type_field,omitempty"`

	Fields   []fields.Field    `json:"-"`
	Mappings map[string]string `json:"mappings,omitempty"`

	// OriginalExpression is the definition expression the layer carried
	// before the engine touched it.
	OriginalExpression string `json:"original_expression,omitempty"`

	IsSubLayer      bool   `json:"is_sub_layer"`
	ParentServiceID string `json:"parent_service_id,omitempty"`
	SubLayerID      int    `json:"sub_layer_id,omitempty"`
}

// Resolve finds the field for role on this layer, honoring the layer's
// field mappings.
func (i *Info) Resolve(role string) (fields.Field, bool) {
	if i == nil {
		return fields.Field{}, false
	}
	return fields.Resolve(i.Fields, role, i.Mappings[role])
}

// ServiceKey is the index key of a map-image service sub-layer.
func ServiceKey(serviceID string, subLayerID int) string {
	return fmt.Sprintf("%s/%d", serviceID, subLayerID)
}

// Index is the immutable result of Classify.
type Index struct {
	// Entries holds every classified entity in draw order, bottom to top.
	// Service sub-layers appear at the position of their service.
	Entries []*Info
	ByID    map[string]*Info
	// Services maps a map-image service id to its classified sub-layers.
	Services     map[string][]*Info
	ServiceOrder []string

	SitesInfo      *Info
	FacilitiesInfo *Info
	LevelsInfo     *Info
}

func (idx *Index) Info(id string) (*Info, bool) {
	if idx == nil {
		return nil, false
	}
	info, ok := idx.ByID[id]
	return info, ok
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.Entries)
}

func (idx *Index) add(info *Info) bool {
	if _, exists := idx.ByID[info.ID]; exists {
		return false
	}
	idx.ByID[info.ID] = info
	idx.Entries = append(idx.Entries, info)
	return true
}

// setPrimary registers info as the sites, facilities or levels layer unless
// one was registered earlier.
func (idx *Index) setPrimary(info *Info) {
	switch {
	case info.IsSites:
		if idx.SitesInfo == nil {
			idx.SitesInfo = info
		}
	case info.IsFacilities:
		if idx.FacilitiesInfo == nil {
			idx.FacilitiesInfo = info
		}
	case info.IsLevels:
		if idx.LevelsInfo == nil {
			idx.LevelsInfo = info
		}
	}
}

type Classifier struct {
	log         zerolog.Logger
	identifiers Identifiers
	mappings    []Mapping
}

func NewClassifier(log zerolog.Logger, ids Identifiers, mappings []Mapping) *Classifier {
	if ids == nil {
		ids = DefaultIdentifiers()
	}
	return &Classifier{log: log, identifiers: ids, mappings: mappings}
}

// Classify scans handles in draw order. Layers that are neither sites,
// facilities nor level-aware are left out of the index.
func (c *Classifier) Classify(handles []Handle) *Index {
	idx := &Index{
		ByID:     map[string]*Info{},
		Services: map[string][]*Info{},
	}

	var subInfos []*Info
	for _, h := range handles {
		if h == nil {
			continue
		}
		kind := h.Kind()
		switch {
		case kind == KindMapImageService:
			serviceID := h.ID()
			for _, sub := range h.SubLayers() {
				if sub == nil || !IsFeatureLike(sub.Kind()) {
					continue
				}
				info := c.makeInfo(sub)
				if info == nil {
					continue
				}
				subLayerID, _ := sub.LayerID()
				info.ID = ServiceKey(serviceID, subLayerID)
				info.IsSubLayer = true
				info.ParentServiceID = serviceID
				info.SubLayerID = subLayerID
				if !idx.add(info) {
					c.log.Debug().Str("layer_id", info.ID).Msg("duplicate sub-layer id skipped")
					continue
				}
				if _, seen := idx.Services[serviceID]; !seen {
					idx.ServiceOrder = append(idx.ServiceOrder, serviceID)
				}
				idx.Services[serviceID] = append(idx.Services[serviceID], info)
				subInfos = append(subInfos, info)
			}
		case IsFeatureLike(kind):
			info := c.makeInfo(h)
			if info == nil {
				continue
			}
			if !idx.add(info) {
				c.log.Debug().Str("layer_id", info.ID).Msg("duplicate layer id skipped")
				continue
			}
			idx.setPrimary(info)
		default:
			c.log.Debug().Str("layer_id", h.ID()).Str("kind", kind.String()).Msg("layer kind not classifiable")
		}
	}

	// Feature layers take precedence over service sub-layers.
	for _, info := range subInfos {
		idx.setPrimary(info)
	}

	c.log.Info().
		Int("classified", len(idx.Entries)).
		Int("services", len(idx.ServiceOrder)).
		Bool("has_facilities_layer", idx.FacilitiesInfo != nil).
		Bool("has_levels_layer", idx.LevelsInfo != nil).
		Msg("layers classified")
	return idx
}

func (c *Classifier) makeInfo(h Handle) *Info {
	title := h.Title()
	layerID, hasLayerID := h.LayerID()

	isSites := c.identifiers.check(CategorySites, title, layerID, hasLayerID)
	isFacilities := c.identifiers.check(CategoryFacilities, title, layerID, hasLayerID)
	isLevels := c.identifiers.check(CategoryLevels, title, layerID, hasLayerID)
	isUnits := c.identifiers.check(CategoryUnits, title, layerID, hasLayerID)
	isDetails := c.identifiers.check(CategoryDetails, title, layerID, hasLayerID)

	schema := append([]fields.Field(nil), h.Fields()...)
	mappings := findMappings(c.mappings, title)

	facilityField, hasFacility := fields.Resolve(schema, fields.RoleFacilityID, mappings[fields.RoleFacilityID])
	levelField, hasLevel := fields.Resolve(schema, fields.RoleLevelID, mappings[fields.RoleLevelID])
	locField, hasLoc := fields.Resolve(schema, fields.RoleLocationType, mappings[fields.RoleLocationType])

	hasFacilityAndLevel := hasFacility && hasLevel && facilityField.IsString() && levelField.IsString()
	hasMappings := mappings != nil

	if !isSites && !isFacilities && !hasFacilityAndLevel && !hasMappings {
		c.log.Debug().Str("layer_id", h.ID()).Str("title", title).Msg("layer is not level-aware")
		return nil
	}

	info := &Info{
		ID:                   h.ID(),
		Title:                title,
		Kind:                 h.Kind(),
		IsSites:              isSites,
		IsFacilities:         isFacilities,
		IsLevels:             isLevels,
		IsUnits:              isUnits,
		IsDetails:            isDetails,
		IsLevelAware:         hasFacilityAndLevel || hasMappings,
		RequiresFacilityMode: isLevels || isUnits || isDetails,
		Fields:               schema,
		Mappings:             mappings,
		OriginalExpression:   h.Expression(),
	}
	if hasFacility {
		info.FacilityIDField = facilityField.Name
	}
	if hasLevel {
		info.LevelIDField = levelField.Name
	}
	if hasLoc && locField.IsInteger() {
		info.LocationTypeField = locField.Name
	}
	return info
}
