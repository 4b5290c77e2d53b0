package layers

import (
	"floorfilter/internal/fields"
)

// Kind is the closed set of layer types the engine distinguishes. It is
// resolved once during classification and carried on Info.
type Kind int

const (
	KindOther Kind = iota
	KindFeature
	KindMapImageService
	KindScene
)

func (k Kind) String() string {
	switch k {
	case KindFeature:
		return "feature"
	case KindMapImageService:
		return "map-image"
	case KindScene:
		return "scene"
	default:
		return "other"
	}
}

// IsFeatureLike reports whether layers of this kind carry a queryable schema
// and a definition expression of their own.
func IsFeatureLike(k Kind) bool {
	return k == KindFeature || k == KindScene
}

// Handle is the host's view of one map layer. Map-image services expose their
// sub-layers as feature-like handles through SubLayers, in draw order from
// bottom to top.
type Handle interface {
	ID() string
	Title() string
	// LayerID is the numeric layer id within the backing service, if any.
	LayerID() (int, bool)
	Fields() []fields.Field
	// Expression is the definition expression currently set on the layer.
	Expression() string
	Kind() Kind
	SubLayers() []Handle
}
