// Package facilities caches the features of the facilities table so a
// facility can be looked up by id or by a clicked object id.
package facilities

import (
	"github.com/rs/zerolog"

	"floorfilter/internal/fields"
)

// Feature is one facility record. Attributes are keyed by field name.
type Feature struct {
	Attributes map[string]any `json:"attributes"`
}

func (f Feature) FacilityID() string {
	id, _ := fields.String(f.Attributes, fields.RoleFacilityID)
	return id
}

func (f Feature) Name() string {
	if name, ok := fields.String(f.Attributes, fields.RoleName); ok && name != "" {
		return name
	}
	name, _ := fields.String(f.Attributes, fields.RoleFacilityName)
	return name
}

// Cache is read-only once built.
type Cache struct {
	features      []Feature
	objectIDField string
}

// NewCache stores rows as features and discovers the object id field from
// schema. A missing object id field disables FindByObjectID.
func NewCache(rows []map[string]any, schema []fields.Field, log zerolog.Logger) *Cache {
	c := &Cache{features: make([]Feature, 0, len(rows))}
	for _, row := range rows {
		if row == nil {
			continue
		}
		c.features = append(c.features, Feature{Attributes: row})
	}
	for _, f := range schema {
		if f.Type == fields.TypeOID {
			c.objectIDField = f.Name
			break
		}
	}
	if c.objectIDField == "" && len(c.features) > 0 {
		log.Warn().Msg("facilities: unable to locate object id field")
	}
	return c
}

func (c *Cache) HasFacilities() bool {
	return c != nil && len(c.features) > 0
}

func (c *Cache) Features() []Feature {
	if c == nil {
		return nil
	}
	return c.features
}

func (c *Cache) ObjectIDField() string {
	if c == nil {
		return ""
	}
	return c.objectIDField
}

func (c *Cache) FindByID(facilityID string) (Feature, bool) {
	if c == nil || facilityID == "" {
		return Feature{}, false
	}
	for _, f := range c.features {
		if id, ok := fields.String(f.Attributes, fields.RoleFacilityID); ok && id == facilityID {
			return f, true
		}
	}
	return Feature{}, false
}

func (c *Cache) FindByObjectID(objectID int64) (Feature, bool) {
	if c == nil || c.objectIDField == "" {
		return Feature{}, false
	}
	for _, f := range c.features {
		n, ok := fields.Number(f.Attributes, c.objectIDField)
		if ok && n == float64(objectID) {
			return f, true
		}
	}
	return Feature{}, false
}
