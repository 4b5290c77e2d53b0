package apply

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"floorfilter/internal/expression"
	"floorfilter/internal/layers"
)

type fakeTarget struct {
	exprs        map[string]string
	subExprs     map[string]map[int]string
	writes       int
	serviceCalls int
	failOn       string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{exprs: map[string]string{}, subExprs: map[string]map[int]string{}}
}

func (f *fakeTarget) Expression(layerID string) string { return f.exprs[layerID] }

func (f *fakeTarget) SetExpression(layerID, expr string) error {
	if layerID == f.failOn {
		return errors.New("boom")
	}
	f.writes++
	f.exprs[layerID] = expr
	return nil
}

func (f *fakeTarget) SetSubLayerExpressions(serviceID string, exprs map[int]string) error {
	if serviceID == f.failOn {
		return errors.New("boom")
	}
	f.serviceCalls++
	if f.subExprs[serviceID] == nil {
		f.subExprs[serviceID] = map[int]string{}
	}
	for id, e := range exprs {
		f.subExprs[serviceID][id] = e
	}
	return nil
}

func TestCompose(t *testing.T) {
	cases := []struct {
		original, where, want string
	}{
		{"use_type <> 'Void'", "(a = 'x')", "use_type <> 'Void' AND ((a = 'x'))"},
		{"", "(a = 'x')", "(a = 'x')"},
		{"1=1", "(a = 'x')", "(a = 'x')"},
		{"use_type <> 'Void'", "", "use_type <> 'Void'"},
		{"use_type <> 'Void'", expression.All, "use_type <> 'Void'"},
		{"", expression.None, expression.None},
	}
	for _, tc := range cases {
		if got := Compose(tc.original, tc.where); got != tc.want {
			t.Fatalf("Compose(%q, %q): expected %q, got %q", tc.original, tc.where, tc.want, got)
		}
	}
}

func TestApply_RoundTripRestoresOriginal(t *testing.T) {
	target := newFakeTarget()
	target.exprs["units"] = "use_type <> 'Void'"
	info := &layers.Info{ID: "units", OriginalExpression: "use_type <> 'Void'"}
	a := New(target, zerolog.Nop())

	if err := a.Apply(info, "(facility_id = 'F1')"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := target.exprs["units"]; got != "use_type <> 'Void' AND ((facility_id = 'F1'))" {
		t.Fatalf("unexpected composed expression %q", got)
	}

	if err := a.Apply(info, ""); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := target.exprs["units"]; got != "use_type <> 'Void'" {
		t.Fatalf("expected original expression, got %q", got)
	}

	writes := target.writes
	if err := a.Apply(info, expression.All); err != nil {
		t.Fatalf("apply all: %v", err)
	}
	if target.writes != writes {
		t.Fatalf("expected no write when the original is already live")
	}
}

func TestApplyResult_BatchesSubLayers(t *testing.T) {
	target := newFakeTarget()
	res := &expression.Result{Entries: []expression.Entry{
		{Key: "svc/0", Info: &layers.Info{ID: "svc/0", IsSubLayer: true, ParentServiceID: "svc", SubLayerID: 0}, Where: "(a = 1)"},
		{Key: "fl", Info: &layers.Info{ID: "fl"}, Where: "(b = 2)"},
		{Key: "svc/2", Info: &layers.Info{ID: "svc/2", IsSubLayer: true, ParentServiceID: "svc", SubLayerID: 2, OriginalExpression: "x > 0"}, Where: "(c = 3)"},
	}}

	if err := New(target, zerolog.Nop()).ApplyResult(res); err != nil {
		t.Fatalf("apply result: %v", err)
	}
	if target.serviceCalls != 1 {
		t.Fatalf("expected one batched service write, got %d", target.serviceCalls)
	}
	if got := target.subExprs["svc"][2]; got != "x > 0 AND ((c = 3))" {
		t.Fatalf("unexpected sub-layer expression %q", got)
	}
	if got := target.exprs["fl"]; got != "(b = 2)" {
		t.Fatalf("unexpected feature layer expression %q", got)
	}
}

func TestApplyResult_StopsOnFirstError(t *testing.T) {
	target := newFakeTarget()
	target.failOn = "b"
	res := &expression.Result{Entries: []expression.Entry{
		{Info: &layers.Info{ID: "a"}, Where: "(x = 1)"},
		{Info: &layers.Info{ID: "b"}, Where: "(x = 2)"},
		{Info: &layers.Info{ID: "c"}, Where: "(x = 3)"},
	}}

	err := New(target, zerolog.Nop()).ApplyResult(res)
	if err == nil {
		t.Fatalf("expected error")
	}
	if target.exprs["a"] != "(x = 1)" {
		t.Fatalf("expected earlier write to be kept")
	}
	if _, ok := target.exprs["c"]; ok {
		t.Fatalf("expected later layers to be skipped")
	}
}

func TestRestore(t *testing.T) {
	target := newFakeTarget()
	target.exprs["units"] = "orig AND ((f = 1))"
	idx := &layers.Index{Entries: []*layers.Info{{ID: "units", OriginalExpression: "orig"}}}

	if err := New(target, zerolog.Nop()).Restore(idx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if target.exprs["units"] != "orig" {
		t.Fatalf("expected original, got %q", target.exprs["units"])
	}
}
