// Package kernel defines the primitive identity model: the fixed set of
// kernel primitives, the static layer each one lives in, and the static
// dependency graph between them. Callers never choose a layer; both tables
// here are the only authority.
package kernel

import "sort"

// PrimitiveID identifies a kernel primitive.
type PrimitiveID string

// The 19 kernel primitives.
const (
	// Layer 0 — substrate
	PrimitiveTokenize PrimitiveID = "tokenize"
	PrimitiveEmbed    PrimitiveID = "embed"
	PrimitiveCache    PrimitiveID = "cache"

	// Layer 1 — memory
	PrimitiveIndex  PrimitiveID = "index"
	PrimitiveStore  PrimitiveID = "store"
	PrimitiveRecall PrimitiveID = "recall"

	// Layer 2 — attention
	PrimitiveAttend PrimitiveID = "attend"
	PrimitiveFocus  PrimitiveID = "focus"
	PrimitiveFilter PrimitiveID = "filter"

	// Layer 3 — reasoning
	PrimitivePlan      PrimitiveID = "plan"
	PrimitiveDecompose PrimitiveID = "decompose"
	PrimitiveReflect   PrimitiveID = "reflect"
	PrimitiveVerify    PrimitiveID = "verify"

	// Layer 4 — learning
	PrimitiveAdapt       PrimitiveID = "adapt"
	PrimitiveDistill     PrimitiveID = "distill"
	PrimitiveConsolidate PrimitiveID = "consolidate"

	// Layer 5 — route
	PrimitiveRoute    PrimitiveID = "route"
	PrimitiveCascade  PrimitiveID = "cascade"
	PrimitiveEscalate PrimitiveID = "escalate"
)

// Layer indices.
const (
	LayerSubstrate = 0
	LayerMemory    = 1
	LayerAttention = 2
	LayerReasoning = 3
	LayerLearning  = 4
	LayerRoute     = 5

	// NumLayers is the number of layers in the hierarchy.
	NumLayers = 6
)

var layerNames = [NumLayers]string{
	"substrate",
	"memory",
	"attention",
	"reasoning",
	"learning",
	"route",
}

// primitiveLayers is the static, immutable layer lookup.
var primitiveLayers = map[PrimitiveID]int{
	PrimitiveTokenize:    LayerSubstrate,
	PrimitiveEmbed:       LayerSubstrate,
	PrimitiveCache:       LayerSubstrate,
	PrimitiveIndex:       LayerMemory,
	PrimitiveStore:       LayerMemory,
	PrimitiveRecall:      LayerMemory,
	PrimitiveAttend:      LayerAttention,
	PrimitiveFocus:       LayerAttention,
	PrimitiveFilter:      LayerAttention,
	PrimitivePlan:        LayerReasoning,
	PrimitiveDecompose:   LayerReasoning,
	PrimitiveReflect:     LayerReasoning,
	PrimitiveVerify:      LayerReasoning,
	PrimitiveAdapt:       LayerLearning,
	PrimitiveDistill:     LayerLearning,
	PrimitiveConsolidate: LayerLearning,
	PrimitiveRoute:       LayerRoute,
	PrimitiveCascade:     LayerRoute,
	PrimitiveEscalate:    LayerRoute,
}

// primitiveDeps is the static dependency graph. Dependencies never point at
// a higher layer; within the route layer the escalate -> cascade -> route
// chain is same-layer.
var primitiveDeps = map[PrimitiveID][]PrimitiveID{
	PrimitiveTokenize:    nil,
	PrimitiveEmbed:       {PrimitiveTokenize},
	PrimitiveCache:       nil,
	PrimitiveIndex:       {PrimitiveEmbed},
	PrimitiveStore:       {PrimitiveEmbed, PrimitiveCache},
	PrimitiveRecall:      {PrimitiveEmbed, PrimitiveIndex},
	PrimitiveAttend:      {PrimitiveRecall},
	PrimitiveFocus:       {PrimitiveAttend},
	PrimitiveFilter:      {PrimitiveTokenize},
	PrimitivePlan:        {PrimitiveAttend, PrimitiveRecall},
	PrimitiveDecompose:   {PrimitivePlan},
	PrimitiveReflect:     {PrimitiveRecall},
	PrimitiveVerify:      {PrimitiveFilter, PrimitiveDecompose},
	PrimitiveAdapt:       {PrimitiveReflect, PrimitiveStore},
	PrimitiveDistill:     {PrimitivePlan, PrimitiveStore},
	PrimitiveConsolidate: {PrimitiveStore, PrimitiveIndex},
	PrimitiveRoute:       {PrimitivePlan},
	PrimitiveCascade:     {PrimitiveRoute, PrimitiveAdapt},
	PrimitiveEscalate:    {PrimitiveCascade},
}

// AllPrimitives returns every known primitive id in lexicographic order.
func AllPrimitives() []PrimitiveID {
	ids := make([]PrimitiveID, 0, len(primitiveLayers))
	for id := range primitiveLayers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsKnown reports whether id is part of the static primitive table.
func IsKnown(id PrimitiveID) bool {
	_, ok := primitiveLayers[id]
	return ok
}

// LayerOf returns the static layer of a primitive.
func LayerOf(id PrimitiveID) (int, bool) {
	layer, ok := primitiveLayers[id]
	return layer, ok
}

// LayerName returns the human-readable name of a layer.
func LayerName(layer int) string {
	if layer < 0 || layer >= NumLayers {
		return "unknown"
	}
	return layerNames[layer]
}

// DependenciesOf returns a copy of the static dependency list for id.
func DependenciesOf(id PrimitiveID) []PrimitiveID {
	deps := primitiveDeps[id]
	if len(deps) == 0 {
		return nil
	}
	out := make([]PrimitiveID, len(deps))
	copy(out, deps)
	return out
}
