package facilities

import (
	"testing"

	"github.com/rs/zerolog"

	"floorfilter/internal/fields"
)

func testRows() []map[string]any {
	return []map[string]any{
		{"OBJECTID": int64(11), "FACILITY_ID": "F1", "NAME": "Alpha"},
		{"OBJECTID": int64(12), "FACILITY_ID": "F2", "facility_name": "Beta"},
		nil,
	}
}

func TestCache_Find(t *testing.T) {
	schema := []fields.Field{{Name: "OBJECTID", Type: fields.TypeOID}, {Name: "FACILITY_ID", Type: fields.TypeString}}
	c := NewCache(testRows(), schema, zerolog.Nop())

	if !c.HasFacilities() || len(c.Features()) != 2 {
		t.Fatalf("expected 2 features, got %d", len(c.Features()))
	}
	if c.ObjectIDField() != "OBJECTID" {
		t.Fatalf("expected OBJECTID, got %q", c.ObjectIDField())
	}

	f, ok := c.FindByID("F2")
	if !ok || f.Name() != "Beta" {
		t.Fatalf("expected F2 named Beta, got %+v", f)
	}
	f, ok = c.FindByObjectID(11)
	if !ok || f.FacilityID() != "F1" || f.Name() != "Alpha" {
		t.Fatalf("expected object 11 to be F1, got %+v", f)
	}
	if _, ok := c.FindByID(""); ok {
		t.Fatalf("expected empty id to miss")
	}
	if _, ok := c.FindByObjectID(99); ok {
		t.Fatalf("expected unknown object id to miss")
	}
}

func TestCache_WithoutObjectIDField(t *testing.T) {
	c := NewCache(testRows(), nil, zerolog.Nop())
	if _, ok := c.FindByObjectID(11); ok {
		t.Fatalf("expected lookup by object id to be disabled")
	}
	if _, ok := c.FindByID("F1"); !ok {
		t.Fatalf("expected lookup by facility id to work")
	}
}

func TestCache_NilIsEmpty(t *testing.T) {
	var c *Cache
	if c.HasFacilities() || c.Features() != nil {
		t.Fatalf("expected nil cache to be empty")
	}
}
