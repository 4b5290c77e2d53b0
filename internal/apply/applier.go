// Package apply writes built expressions to the host's layers, combining each
// one with the expression the layer carried before the engine touched it.
package apply

import (
	"fmt"

	"github.com/rs/zerolog"

	"floorfilter/internal/expression"
	"floorfilter/internal/layers"
)

// Target is the write side of the host map.
type Target interface {
	// Expression returns the definition expression currently set on a layer.
	Expression(layerID string) string
	SetExpression(layerID, expr string) error
	// SetSubLayerExpressions replaces the definition expressions of several
	// sub-layers of one map-image service in a single write.
	SetSubLayerExpressions(serviceID string, exprs map[int]string) error
}

type Applier struct {
	target Target
	log    zerolog.Logger
}

func New(target Target, log zerolog.Logger) *Applier {
	return &Applier{target: target, log: log}
}

// Compose returns the expression that should be live on a layer whose
// original expression is original once where is applied.
func Compose(original, where string) string {
	if expression.IsNoFilter(where) {
		return original
	}
	if expression.IsNoFilter(original) {
		return where
	}
	return original + " AND (" + where + ")"
}

// Apply writes where to a single feature-like layer. A no-filter value
// restores the original expression; nothing is written when the live value
// already matches.
func (a *Applier) Apply(info *layers.Info, where string) error {
	if info == nil {
		return nil
	}
	if info.IsSubLayer {
		return a.applyService(info.ParentServiceID, map[*layers.Info]string{info: where})
	}
	next := Compose(info.OriginalExpression, where)
	if expression.IsNoFilter(where) && a.target.Expression(info.ID) == next {
		return nil
	}
	if err := a.target.SetExpression(info.ID, next); err != nil {
		return fmt.Errorf("set expression on layer %q: %w", info.ID, err)
	}
	return nil
}

// ApplyResult writes every entry of res. Sub-layers are batched into one write
// per map-image service. The first failure stops the pass; layers written
// before it keep their new expressions.
func (a *Applier) ApplyResult(res *expression.Result) error {
	if res == nil {
		return nil
	}
	services := map[string]map[*layers.Info]string{}
	var order []string

	for _, e := range res.Entries {
		if e.Info.IsSubLayer {
			svc := e.Info.ParentServiceID
			if _, ok := services[svc]; !ok {
				services[svc] = map[*layers.Info]string{}
				order = append(order, svc)
			}
			services[svc][e.Info] = e.Where
			continue
		}
		if err := a.Apply(e.Info, e.Where); err != nil {
			return err
		}
	}
	for _, svc := range order {
		if err := a.applyService(svc, services[svc]); err != nil {
			return err
		}
	}

	a.log.Debug().
		Int("layers", len(res.Entries)).
		Int("services", len(order)).
		Msg("expressions applied")
	return nil
}

func (a *Applier) applyService(serviceID string, entries map[*layers.Info]string) error {
	exprs := make(map[int]string, len(entries))
	for info, where := range entries {
		exprs[info.SubLayerID] = Compose(info.OriginalExpression, where)
	}
	if err := a.target.SetSubLayerExpressions(serviceID, exprs); err != nil {
		return fmt.Errorf("set sub-layer expressions on service %q: %w", serviceID, err)
	}
	return nil
}

// Restore puts every classified layer back to its original expression.
func (a *Applier) Restore(idx *layers.Index) error {
	if idx == nil {
		return nil
	}
	res := &expression.Result{}
	for _, info := range idx.Entries {
		res.Entries = append(res.Entries, expression.Entry{Key: info.ID, Info: info})
	}
	return a.ApplyResult(res)
}
