package layers

import (
	"testing"

	"github.com/rs/zerolog"

	"floorfilter/internal/fields"
)

type fakeHandle struct {
	id         string
	title      string
	layerID    int
	hasLayerID bool
	schema     []fields.Field
	expression string
	kind       Kind
	subs       []Handle
	reads      int
}

func (f *fakeHandle) ID() string             { return f.id }
func (f *fakeHandle) Title() string          { return f.title }
func (f *fakeHandle) LayerID() (int, bool)   { return f.layerID, f.hasLayerID }
func (f *fakeHandle) Fields() []fields.Field { return f.schema }
func (f *fakeHandle) Kind() Kind             { return f.kind }
func (f *fakeHandle) SubLayers() []Handle    { return f.subs }
func (f *fakeHandle) Expression() string {
	f.reads++
	return f.expression
}

var levelAwareSchema = []fields.Field{
	{Name: "OBJECTID", Type: fields.TypeOID},
	{Name: "FACILITY_ID", Type: fields.TypeString},
	{Name: "LEVEL_ID", Type: fields.TypeString},
	{Name: "LOCATION_TYPE", Type: fields.TypeInteger},
}

func feature(id, title string, schema []fields.Field) *fakeHandle {
	return &fakeHandle{id: id, title: title, schema: schema, kind: KindFeature}
}

func TestClassify_LevelAwareFeatureLayer(t *testing.T) {
	units := feature("units", "Units", levelAwareSchema)
	units.expression = "use_type <> 'Void'"

	idx := NewClassifier(zerolog.Nop(), nil, nil).Classify([]Handle{units})

	info, ok := idx.Info("units")
	if !ok {
		t.Fatalf("expected units to be indexed")
	}
	if !info.IsLevelAware || !info.IsUnits || !info.RequiresFacilityMode {
		t.Fatalf("unexpected classification: %+v", info)
	}
	if info.FacilityIDField != "FACILITY_ID" || info.LevelIDField != "LEVEL_ID" {
		t.Fatalf("unexpected fields: %q %q", info.FacilityIDField, info.LevelIDField)
	}
	if info.LocationTypeField != "LOCATION_TYPE" {
		t.Fatalf("expected location type field, got %q", info.LocationTypeField)
	}
	if info.OriginalExpression != "use_type <> 'Void'" {
		t.Fatalf("expected original expression to be captured, got %q", info.OriginalExpression)
	}
	if units.reads != 1 {
		t.Fatalf("expected expression to be read exactly once, got %d", units.reads)
	}
}

func TestClassify_ExcludesUnfilterableLayers(t *testing.T) {
	roads := feature("roads", "Roads", []fields.Field{{Name: "name", Type: fields.TypeString}})
	numericIDs := feature("odd", "Odd", []fields.Field{
		{Name: "facility_id", Type: fields.TypeInteger},
		{Name: "level_id", Type: fields.TypeInteger},
	})
	tiles := &fakeHandle{id: "basemap", title: "Basemap", kind: KindOther}

	idx := NewClassifier(zerolog.Nop(), nil, nil).Classify([]Handle{roads, numericIDs, tiles})
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d entries", idx.Len())
	}
}

func TestClassify_FacilitiesWithoutLevelFieldsIsKept(t *testing.T) {
	fac := feature("fac", "Facilities", []fields.Field{{Name: "facility_id", Type: fields.TypeString}})
	idx := NewClassifier(zerolog.Nop(), nil, nil).Classify([]Handle{fac})

	info, ok := idx.Info("fac")
	if !ok {
		t.Fatalf("expected facilities layer in index")
	}
	if info.IsLevelAware {
		t.Fatalf("expected facilities layer without level_id to not be level-aware")
	}
	if idx.FacilitiesInfo != info {
		t.Fatalf("expected facilities layer to be primary")
	}
	if info.LocationTypeField != "" {
		t.Fatalf("expected no location type field")
	}
}

func TestClassify_NonIntegerLocationTypeIgnored(t *testing.T) {
	schema := []fields.Field{
		{Name: "facility_id", Type: fields.TypeString},
		{Name: "level_id", Type: fields.TypeString},
		{Name: "location_type", Type: fields.TypeString},
	}
	idx := NewClassifier(zerolog.Nop(), nil, nil).Classify([]Handle{feature("d", "Details", schema)})
	info, _ := idx.Info("d")
	if info.LocationTypeField != "" {
		t.Fatalf("expected string location_type to be ignored, got %q", info.LocationTypeField)
	}
}

func TestClassify_MappingsMakeLayerLevelAware(t *testing.T) {
	schema := []fields.Field{
		{Name: "fac", Type: fields.TypeString},
		{Name: "lvl", Type: fields.TypeString},
	}
	mappings := []Mapping{{
		LayerTitle: "rooms",
		Mappings:   map[string]string{"facility_id": "fac", "LEVEL_ID": "lvl"},
	}}
	idx := NewClassifier(zerolog.Nop(), nil, mappings).Classify([]Handle{feature("r", "Rooms", schema)})

	info, ok := idx.Info("r")
	if !ok || !info.IsLevelAware {
		t.Fatalf("expected mapped layer to be level-aware")
	}
	if info.FacilityIDField != "fac" || info.LevelIDField != "lvl" {
		t.Fatalf("expected mapped field names, got %q %q", info.FacilityIDField, info.LevelIDField)
	}
	if f, ok := info.Resolve(fields.RoleLevelID); !ok || f.Name != "lvl" {
		t.Fatalf("expected Resolve to honor mappings")
	}
}

func TestClassify_NumericIdentifier(t *testing.T) {
	ids := DefaultIdentifiers()
	if err := ids.Configure(map[string]any{"FACILITIES": []any{float64(7)}}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	fac := feature("fac", "Buildings", []fields.Field{{Name: "facility_id", Type: fields.TypeString}})
	fac.layerID, fac.hasLayerID = 7, true
	byTitle := feature("fac2", "Facilities", []fields.Field{{Name: "facility_id", Type: fields.TypeString}})

	idx := NewClassifier(zerolog.Nop(), ids, nil).Classify([]Handle{byTitle, fac})
	if idx.FacilitiesInfo == nil || idx.FacilitiesInfo.ID != "fac" {
		t.Fatalf("expected layer id 7 to be the facilities layer, got %+v", idx.FacilitiesInfo)
	}
	if _, ok := idx.Info("fac2"); ok {
		t.Fatalf("expected title matcher to be replaced by configuration")
	}
}

func TestClassify_MapImageSubLayers(t *testing.T) {
	subFacilities := &fakeHandle{id: "s0", title: "Facilities", layerID: 0, hasLayerID: true, kind: KindFeature,
		schema: []fields.Field{{Name: "facility_id", Type: fields.TypeString}}}
	subUnits := &fakeHandle{id: "s2", title: "Units", layerID: 2, hasLayerID: true, kind: KindFeature,
		schema: levelAwareSchema, expression: "1=1"}
	subRoads := &fakeHandle{id: "s3", title: "Roads", layerID: 3, hasLayerID: true, kind: KindFeature}
	service := &fakeHandle{id: "indoors", title: "Indoors", kind: KindMapImageService,
		subs: []Handle{subFacilities, subUnits, subRoads}}

	featureFacilities := feature("fl", "Facilities", []fields.Field{{Name: "facility_id", Type: fields.TypeString}})

	idx := NewClassifier(zerolog.Nop(), nil, nil).Classify([]Handle{service, featureFacilities})

	if len(idx.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(idx.Entries))
	}
	if idx.Entries[0].ID != "indoors/0" || idx.Entries[1].ID != "indoors/2" || idx.Entries[2].ID != "fl" {
		t.Fatalf("unexpected entry order: %s %s %s", idx.Entries[0].ID, idx.Entries[1].ID, idx.Entries[2].ID)
	}
	units, ok := idx.Info(ServiceKey("indoors", 2))
	if !ok {
		t.Fatalf("expected composite key for units sub-layer")
	}
	if !units.IsSubLayer || units.ParentServiceID != "indoors" || units.SubLayerID != 2 {
		t.Fatalf("unexpected sub-layer info: %+v", units)
	}
	if got := idx.Services["indoors"]; len(got) != 2 {
		t.Fatalf("expected 2 classified sub-layers, got %d", len(got))
	}
	if idx.FacilitiesInfo == nil || idx.FacilitiesInfo.ID != "fl" {
		t.Fatalf("expected feature layer to win the facilities slot over sub-layer")
	}
}

func TestClassify_FirstRegisteredWins(t *testing.T) {
	a := feature("a", "Facilities", []fields.Field{{Name: "facility_id", Type: fields.TypeString}})
	b := feature("b", "Facilities Textured", []fields.Field{{Name: "facility_id", Type: fields.TypeString}})
	idx := NewClassifier(zerolog.Nop(), nil, nil).Classify([]Handle{a, b})
	if idx.FacilitiesInfo.ID != "a" {
		t.Fatalf("expected first facilities layer to win, got %q", idx.FacilitiesInfo.ID)
	}
}

func TestParseMatchers(t *testing.T) {
	ms, err := ParseMatchers([]any{"Rooms", 3, float64(4)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms) != 3 || ms[0].Title != "Rooms" || *ms[1].LayerID != 3 || *ms[2].LayerID != 4 {
		t.Fatalf("unexpected matchers: %v", ms)
	}
	if _, err := ParseMatchers([]any{1.5}); err == nil {
		t.Fatalf("expected fractional id to fail")
	}
	if ms, _ := ParseMatchers("Units"); len(ms) != 1 || ms[0].String() != "Units" {
		t.Fatalf("expected scalar string to produce one matcher")
	}
}
