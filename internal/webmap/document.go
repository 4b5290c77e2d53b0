// Package webmap is an in-memory host map built from web map JSON. It exposes
// the operational layers as layer handles and keeps their live definition
// expressions.
package webmap

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"floorfilter/internal/fields"
	"floorfilter/internal/layers"
)

const (
	LayerTypeFeature    = "ArcGISFeatureLayer"
	LayerTypeMapService = "ArcGISMapServiceLayer"
	LayerTypeScene      = "ArcGISSceneServiceLayer"
)

// Document is the subset of a web map the floor filter reads and writes.
type Document struct {
	OperationalLayers []OperationalLayer `json:"operationalLayers"`
}

type OperationalLayer struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	URL             string           `json:"url,omitempty"`
	LayerType       string           `json:"layerType"`
	LayerDefinition *LayerDefinition `json:"layerDefinition,omitempty"`
	// Layers holds the sub-layers of a map service layer.
	Layers []SubLayer `json:"layers,omitempty"`
}

type SubLayer struct {
	ID              int              `json:"id"`
	Name            string           `json:"name"`
	LayerDefinition *LayerDefinition `json:"layerDefinition,omitempty"`
}

type LayerDefinition struct {
	DefinitionExpression string  `json:"definitionExpression,omitempty"`
	Fields               []Field `json:"fields,omitempty"`
}

type Field struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Alias string `json:"alias,omitempty"`
}

func Decode(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode web map: %w", err)
	}
	return doc, nil
}

func ReadFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

func kindOf(layerType string) layers.Kind {
	switch layerType {
	case LayerTypeFeature:
		return layers.KindFeature
	case LayerTypeMapService:
		return layers.KindMapImageService
	case LayerTypeScene:
		return layers.KindScene
	default:
		return layers.KindOther
	}
}

// layerIDFromURL returns the trailing numeric path segment of a feature
// service layer URL (".../FeatureServer/3").
func layerIDFromURL(raw string) (int, bool) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	i := strings.LastIndexByte(raw, '/')
	if i < 0 {
		return 0, false
	}
	id, err := strconv.Atoi(raw[i+1:])
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

func schemaOf(def *LayerDefinition) []fields.Field {
	if def == nil {
		return nil
	}
	out := make([]fields.Field, 0, len(def.Fields))
	for _, f := range def.Fields {
		out = append(out, fields.Field{Name: f.Name, Type: fields.ParseType(f.Type)})
	}
	return out
}

func expressionOf(def *LayerDefinition) string {
	if def == nil {
		return ""
	}
	return def.DefinitionExpression
}
