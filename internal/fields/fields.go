package fields

import (
	"math"
	"strings"
)

// Type is the logical type of an attribute field.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeDouble  Type = "double"
	TypeOID     Type = "oid"
	TypeOther   Type = "other"
)

// Field is an immutable entry of a layer schema.
type Field struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Logical field roles. Each role name doubles as the default field name.
const (
	RoleFacilityID    = "facility_id"
	RoleFacilityName  = "facility_name"
	RoleLevelID       = "level_id"
	RoleLevelName     = "level_name"
	RoleLevelNumber   = "level_number"
	RoleLocationType  = "location_type"
	RoleName          = "name"
	RoleNameShort     = "name_short"
	RoleVerticalOrder = "vertical_order"
)

var defaultNames = map[string]string{
	RoleFacilityID:    "facility_id",
	RoleFacilityName:  "facility_name",
	RoleLevelID:       "level_id",
	RoleLevelName:     "level_name",
	RoleLevelNumber:   "level_number",
	RoleLocationType:  "location_type",
	RoleName:          "name",
	RoleNameShort:     "name_short",
	RoleVerticalOrder: "vertical_order",
}

// DefaultName returns the default field name for a role. Unknown roles are
// returned unchanged so callers can resolve arbitrary field names.
func DefaultName(role string) string {
	if name, ok := defaultNames[strings.ToLower(strings.TrimSpace(role))]; ok {
		return name
	}
	return role
}

// ParseType maps the field type spellings used by feature services and the
// JavaScript API onto Type.
func ParseType(raw string) Type {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "string", "esrifieldtypestring", "text", "varchar":
		return TypeString
	case "integer", "small-integer", "long", "big-integer",
		"esrifieldtypeinteger", "esrifieldtypesmallinteger", "esrifieldtypebiginteger", "int":
		return TypeInteger
	case "double", "single", "esrifieldtypedouble", "esrifieldtypesingle", "real", "float":
		return TypeDouble
	case "oid", "esrifieldtypeoid":
		return TypeOID
	default:
		return TypeOther
	}
}

func (f Field) IsString() bool {
	return f.Type == TypeString
}

func (f Field) IsInteger() bool {
	return f.Type == TypeInteger
}

// IsNumeric reports whether comparisons against the field take unquoted numbers.
func (f Field) IsNumeric() bool {
	return f.Type == TypeInteger || f.Type == TypeDouble
}

// Find returns the first field whose name equals name, ignoring case.
func Find(fields []Field, name string) (Field, bool) {
	if name == "" {
		return Field{}, false
	}
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// Resolve finds the concrete field for a logical role. A non-empty override
// takes precedence over the default role name.
func Resolve(fields []Field, role, override string) (Field, bool) {
	name := strings.TrimSpace(override)
	if name == "" {
		name = DefaultName(role)
	}
	return Find(fields, name)
}

// Value looks up an attribute by exact key first, then case-insensitively.
func Value(attrs map[string]any, name string) (any, bool) {
	if attrs == nil || name == "" {
		return nil, false
	}
	if v, ok := attrs[name]; ok {
		return v, true
	}
	for k, v := range attrs {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func Has(attrs map[string]any, name string) bool {
	_, ok := Value(attrs, name)
	return ok
}

// String returns the attribute as a string when it holds one.
func String(attrs map[string]any, name string) (string, bool) {
	v, ok := Value(attrs, name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Number returns the attribute as a float64 when it holds a numeric value.
// Missing and non-numeric values yield NaN and false.
func Number(attrs map[string]any, name string) (float64, bool) {
	v, ok := Value(attrs, name)
	if !ok {
		return math.NaN(), false
	}
	return ToNumber(v)
}

// ToNumber converts the numeric kinds drivers and JSON decoders produce.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		if err != nil {
			return math.NaN(), false
		}
		return f, true
	default:
		return math.NaN(), false
	}
}

// IsFinite reports whether v is a usable numeric value.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
