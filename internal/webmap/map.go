package webmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"floorfilter/internal/fields"
	"floorfilter/internal/layers"
)

var ErrUnknownLayer = errors.New("unknown layer")

// Map holds a decoded web map and the live definition expression of each
// feature-like layer and map service sub-layer. It is safe for concurrent use.
type Map struct {
	mu       sync.RWMutex
	doc      Document
	exprs    map[string]string
	subExprs map[string]map[int]string

	writes      int
	batchWrites int
}

func New(doc Document) *Map {
	m := &Map{
		doc:      doc,
		exprs:    map[string]string{},
		subExprs: map[string]map[int]string{},
	}
	for _, ol := range doc.OperationalLayers {
		switch kindOf(ol.LayerType) {
		case layers.KindMapImageService:
			subs := map[int]string{}
			for _, sub := range ol.Layers {
				subs[sub.ID] = expressionOf(sub.LayerDefinition)
			}
			m.subExprs[ol.ID] = subs
		default:
			m.exprs[ol.ID] = expressionOf(ol.LayerDefinition)
		}
	}
	return m
}

func Open(path string) (*Map, error) {
	doc, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(doc), nil
}

// WaitReady returns once the map can be scanned. A decoded document is ready
// immediately.
func (m *Map) WaitReady(ctx context.Context) error {
	return ctx.Err()
}

// Layers returns the operational layers in draw order, bottom to top.
func (m *Map) Layers(ctx context.Context) ([]layers.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]layers.Handle, 0, len(m.doc.OperationalLayers))
	for _, ol := range m.doc.OperationalLayers {
		h := &layerHandle{
			m:      m,
			id:     ol.ID,
			title:  ol.Title,
			kind:   kindOf(ol.LayerType),
			schema: schemaOf(ol.LayerDefinition),
		}
		h.layerID, h.hasLayerID = layerIDFromURL(ol.URL)
		if h.kind == layers.KindMapImageService {
			// Sub-layer 0 draws on top; handles go bottom to top.
			for i := len(ol.Layers) - 1; i >= 0; i-- {
				sub := ol.Layers[i]
				h.subs = append(h.subs, &subLayerHandle{
					m:         m,
					serviceID: ol.ID,
					sub:       sub.ID,
					title:     sub.Name,
					schema:    schemaOf(sub.LayerDefinition),
				})
			}
		}
		out = append(out, h)
	}
	return out, nil
}

func (m *Map) Expression(layerID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exprs[layerID]
}

func (m *Map) SubLayerExpression(serviceID string, subLayerID int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subExprs[serviceID][subLayerID]
}

func (m *Map) SetExpression(layerID, expr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exprs[layerID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, layerID)
	}
	m.exprs[layerID] = expr
	m.writes++
	return nil
}

// SetSubLayerExpressions replaces the expressions of several sub-layers of a
// map service as one write.
func (m *Map) SetSubLayerExpressions(serviceID string, exprs map[int]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs, ok := m.subExprs[serviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, serviceID)
	}
	for id := range exprs {
		if _, ok := subs[id]; !ok {
			return fmt.Errorf("%w: %s/%d", ErrUnknownLayer, serviceID, id)
		}
	}
	for id, expr := range exprs {
		subs[id] = expr
	}
	m.batchWrites++
	return nil
}

// Writes reports how many single-layer and batched service writes were made.
func (m *Map) Writes() (layerWrites, serviceWrites int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes, m.batchWrites
}

// Document returns a copy of the web map with the live expressions written
// into each layer definition.
func (m *Map) Document() Document {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := Document{OperationalLayers: make([]OperationalLayer, len(m.doc.OperationalLayers))}
	for i, ol := range m.doc.OperationalLayers {
		cp := ol
		if subs, ok := m.subExprs[ol.ID]; ok {
			cp.Layers = make([]SubLayer, len(ol.Layers))
			for j, sub := range ol.Layers {
				sub.LayerDefinition = withExpression(sub.LayerDefinition, subs[sub.ID])
				cp.Layers[j] = sub
			}
		} else {
			cp.LayerDefinition = withExpression(ol.LayerDefinition, m.exprs[ol.ID])
		}
		out.OperationalLayers[i] = cp
	}
	return out
}

func (m *Map) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m.Document())
}

func withExpression(def *LayerDefinition, expr string) *LayerDefinition {
	if def == nil && expr == "" {
		return nil
	}
	out := LayerDefinition{}
	if def != nil {
		out = *def
	}
	out.DefinitionExpression = expr
	return &out
}

type layerHandle struct {
	m          *Map
	id         string
	title      string
	layerID    int
	hasLayerID bool
	schema     []fields.Field
	kind       layers.Kind
	subs       []layers.Handle
}

func (h *layerHandle) ID() string                 { return h.id }
func (h *layerHandle) Title() string              { return h.title }
func (h *layerHandle) LayerID() (int, bool)       { return h.layerID, h.hasLayerID }
func (h *layerHandle) Fields() []fields.Field     { return h.schema }
func (h *layerHandle) Expression() string         { return h.m.Expression(h.id) }
func (h *layerHandle) Kind() layers.Kind          { return h.kind }
func (h *layerHandle) SubLayers() []layers.Handle { return h.subs }

type subLayerHandle struct {
	m         *Map
	serviceID string
	sub       int
	title     string
	schema    []fields.Field
}

func (h *subLayerHandle) ID() string                 { return h.serviceID + "/" + strconv.Itoa(h.sub) }
func (h *subLayerHandle) Title() string              { return h.title }
func (h *subLayerHandle) LayerID() (int, bool)       { return h.sub, true }
func (h *subLayerHandle) Fields() []fields.Field     { return h.schema }
func (h *subLayerHandle) Expression() string         { return h.m.SubLayerExpression(h.serviceID, h.sub) }
func (h *subLayerHandle) Kind() layers.Kind          { return layers.KindFeature }
func (h *subLayerHandle) SubLayers() []layers.Handle { return nil }
