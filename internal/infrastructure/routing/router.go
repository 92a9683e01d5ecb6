// Package routing provides the confidence-gated cascade router: tier
// selection, depth-aware confidence adjustment, escalation, adaptive
// threshold learning, and adapter/distillation bookkeeping.
package routing

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	domain "github.com/cortexos/cortex-go/internal/domain/routing"
	"github.com/cortexos/cortex-go/internal/infrastructure/events"
	"github.com/cortexos/cortex-go/internal/shared"
)

// Router owns tiers, modality routes, LoRA adapters, distillation configs,
// and routing decisions.
//
// Route slots are an intentional backpressure contract: Cascade takes an
// in-flight slot that ONLY RecordOutcome releases. A caller that abandons a
// cascade decision without recording an outcome permanently holds that
// slot; there is no automatic expiry. Modality-pinned decisions hold no
// slot.
type Router struct {
	mu     sync.Mutex
	config domain.RouterConfig

	tiers          map[string]domain.ModelTier
	modalityRoutes map[domain.Modality]domain.ModalityRoute
	adapters       []domain.LoRAAdapter
	distillations  map[string]domain.DistillationConfig

	// decisions is bounded; the oldest decision is evicted once full.
	// Reads go through Peek only, so the LRU never reorders and eviction
	// stays insertion-ordered.
	decisions *lru.Cache[string, domain.RoutingDecision]

	activeRoutes     int
	totalRoutes      int64
	totalEscalations int64
	tierUsage        map[string]int64
	confidenceSum    float64
	confidenceCount  int64

	bus *events.Bus
}

// Option configures the Router.
type Option func(*routerOptions)

type routerOptions struct {
	skipDefaults bool
}

// WithoutDefaults skips seeding the default tiers and modality routes.
func WithoutDefaults() Option {
	return func(o *routerOptions) {
		o.skipDefaults = true
	}
}

// New creates a Router. Events are published to bus, which may be nil.
//
// Zero-valued numeric config fields are backfilled from
// DefaultRouterConfig. Boolean fields are taken as given, so a zero-value
// RouterConfig disables depth-aware routing; callers that want the
// documented defaults should start from DefaultRouterConfig and mutate.
func New(config domain.RouterConfig, bus *events.Bus, opts ...Option) *Router {
	if config.LearningRate <= 0 {
		config.LearningRate = domain.DefaultRouterConfig().LearningRate
	}
	if config.MaxCascadeDepth <= 0 {
		config.MaxCascadeDepth = domain.DefaultRouterConfig().MaxCascadeDepth
	}
	if config.MaxConcurrentRoutes <= 0 {
		config.MaxConcurrentRoutes = domain.DefaultRouterConfig().MaxConcurrentRoutes
	}
	if config.DecisionHistorySize <= 0 {
		config.DecisionHistorySize = domain.DefaultRouterConfig().DecisionHistorySize
	}
	if config.DefaultConfidenceThreshold <= 0 {
		config.DefaultConfidenceThreshold = domain.DefaultRouterConfig().DefaultConfidenceThreshold
	}

	var options routerOptions
	for _, opt := range opts {
		opt(&options)
	}

	decisions, _ := lru.New[string, domain.RoutingDecision](config.DecisionHistorySize)

	r := &Router{
		config:         config,
		tiers:          make(map[string]domain.ModelTier),
		modalityRoutes: make(map[domain.Modality]domain.ModalityRoute),
		distillations:  make(map[string]domain.DistillationConfig),
		decisions:      decisions,
		tierUsage:      make(map[string]int64),
		bus:            bus,
	}

	if !options.skipDefaults {
		r.initializeDefaults()
	}
	return r
}

// Default tier and modality seeds. Ordinary mutable state after
// construction, not constants.
func (r *Router) initializeDefaults() {
	tiers := []domain.ModelTier{
		{
			ID:                  "tier_fast",
			Name:                "Fast",
			Model:               "cortex-fast-1",
			ConfidenceThreshold: 0.8,
			CostPerToken:        0.0000025,
			MaxTokens:           8192,
			LatencyMs:           300,
			Capabilities:        []string{"completion", "classification"},
		},
		{
			ID:                  "tier_balanced",
			Name:                "Balanced",
			Model:               "cortex-balanced-1",
			ConfidenceThreshold: 0.5,
			CostPerToken:        0.000015,
			MaxTokens:           32768,
			LatencyMs:           1200,
			Capabilities:        []string{"completion", "classification", "reasoning", "code"},
		},
		{
			ID:                  "tier_best",
			Name:                "Best",
			Model:               "cortex-best-1",
			ConfidenceThreshold: 0.0,
			CostPerToken:        0.000075,
			MaxTokens:           200000,
			LatencyMs:           4000,
			Capabilities:        []string{"completion", "classification", "reasoning", "code", "vision", "long-context"},
		},
	}
	for _, tier := range tiers {
		r.tiers[tier.ID] = tier
	}

	routes := []domain.ModalityRoute{
		{Modality: domain.ModalityText, PreferredModel: "cortex-fast-1", FallbackModel: "cortex-balanced-1", MaxTokens: 8192},
		{Modality: domain.ModalityCode, PreferredModel: "cortex-balanced-1", FallbackModel: "cortex-best-1", MaxTokens: 32768},
		{Modality: domain.ModalityImage, PreferredModel: "cortex-best-1", FallbackModel: "cortex-balanced-1", MaxTokens: 16384},
		{Modality: domain.ModalityAudio, PreferredModel: "cortex-best-1", FallbackModel: "cortex-balanced-1", MaxTokens: 16384},
		{Modality: domain.ModalityVideo, PreferredModel: "cortex-best-1", FallbackModel: "", MaxTokens: 32768},
		{Modality: domain.ModalityMultimodal, PreferredModel: "cortex-best-1", FallbackModel: "cortex-balanced-1", MaxTokens: 65536},
		{Modality: domain.ModalityStructuredData, PreferredModel: "cortex-balanced-1", FallbackModel: "cortex-best-1", MaxTokens: 32768},
	}
	for _, route := range routes {
		r.modalityRoutes[route.Modality] = route
	}
}

// RegisterTier upserts a tier by id. Ordering has no side effects here; the
// cost order is recomputed on every read.
func (r *Router) RegisterTier(tier domain.ModelTier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers[tier.ID] = tier.Clone()
}

// RegisterModalityRoute upserts a modality route.
func (r *Router) RegisterModalityRoute(route domain.ModalityRoute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modalityRoutes[route.Modality] = route
}

// Tiers returns the tiers ordered by cost per token ascending.
func (r *Router) Tiers() []domain.ModelTier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orderedTiersLocked()
}

// ModalityRoutes returns all registered modality routes.
func (r *Router) ModalityRoutes() []domain.ModalityRoute {
	r.mu.Lock()
	defer r.mu.Unlock()

	routes := make([]domain.ModalityRoute, 0, len(r.modalityRoutes))
	for _, route := range r.modalityRoutes {
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Modality < routes[j].Modality })
	return routes
}

// orderedTiersLocked returns copies of all tiers sorted by CostPerToken
// ascending, id lexicographic on ties. Callers must hold mu.
func (r *Router) orderedTiersLocked() []domain.ModelTier {
	tiers := make([]domain.ModelTier, 0, len(r.tiers))
	for _, tier := range r.tiers {
		tiers = append(tiers, tier.Clone())
	}
	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].CostPerToken != tiers[j].CostPerToken {
			return tiers[i].CostPerToken < tiers[j].CostPerToken
		}
		return tiers[i].ID < tiers[j].ID
	})
	return tiers
}

// Cascade selects a model tier for a request by comparing its (optionally
// depth-adjusted) confidence against tier thresholds, cheapest first.
//
// The returned decision's id must eventually be passed to RecordOutcome to
// release the in-flight route slot; see the Router doc comment.
func (r *Router) Cascade(req domain.CascadeRequest) (*domain.RoutingDecision, error) {
	if req.Depth >= r.config.MaxCascadeDepth {
		return nil, shared.NewDepthLimitExceeded(req.Depth, r.config.MaxCascadeDepth)
	}

	r.mu.Lock()
	if r.activeRoutes >= r.config.MaxConcurrentRoutes {
		limit := r.config.MaxConcurrentRoutes
		r.mu.Unlock()
		return nil, shared.NewConcurrencyLimitExceeded(limit)
	}
	r.activeRoutes++

	ordered := r.orderedTiersLocked()
	if len(ordered) == 0 {
		r.mu.Unlock()
		return nil, shared.NewNoTiersRegistered()
	}

	confidence := r.config.DefaultConfidenceThreshold
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	adjusted := confidence
	if r.config.DepthAwareRouting {
		adjusted = math.Min(1, confidence+float64(req.Depth)*0.15)
	}

	candidates := filterCandidates(ordered, req.Constraints)
	if len(candidates) == 0 {
		candidates = ordered
	}
	if req.Constraints != nil && req.Constraints.PreferredModel != "" {
		candidates = preferModel(candidates, req.Constraints.PreferredModel)
	}

	selected := candidates[len(candidates)-1]
	defaulted := true
	for _, tier := range candidates {
		if tier.ConfidenceThreshold <= adjusted {
			selected = tier
			defaulted = false
			break
		}
	}

	var reasoning string
	if defaulted {
		reasoning = fmt.Sprintf(
			"confidence %.0f%% (raw %.0f%%, depth %d) met no tier threshold; defaulted to most capable tier %q (threshold %.0f%%)",
			adjusted*100, confidence*100, req.Depth, selected.ID, selected.ConfidenceThreshold*100)
	} else {
		reasoning = fmt.Sprintf(
			"confidence %.0f%% (raw %.0f%%, depth %d) meets tier %q threshold %.0f%%",
			adjusted*100, confidence*100, req.Depth, selected.ID, selected.ConfidenceThreshold*100)
	}

	decision := domain.RoutingDecision{
		ID:         uuid.New().String(),
		Timestamp:  shared.Now(),
		Tier:       selected,
		Confidence: adjusted,
		Depth:      req.Depth,
		Reasoning:  reasoning,
		Modality:   req.Modality,
	}

	r.recordDecisionLocked(decision)
	r.mu.Unlock()

	r.bus.Emit(shared.RouteDecidedPayload{
		DecisionID: decision.ID,
		TierID:     decision.Tier.ID,
		Confidence: decision.Confidence,
		Depth:      decision.Depth,
	})
	return &decision, nil
}

// recordDecisionLocked stores a decision and bumps the cascade counters.
// Callers must hold mu.
func (r *Router) recordDecisionLocked(decision domain.RoutingDecision) {
	r.decisions.Add(decision.ID, decision)
	r.totalRoutes++
	r.tierUsage[decision.Tier.ID]++
	r.confidenceSum += decision.Confidence
	r.confidenceCount++
}

// filterCandidates applies capability and cost constraints. It never applies
// the preferred-model reorder; that happens after the empty-set fallback.
func filterCandidates(ordered []domain.ModelTier, constraints *domain.RouteConstraints) []domain.ModelTier {
	if constraints == nil {
		return ordered
	}

	candidates := make([]domain.ModelTier, 0, len(ordered))
	for _, tier := range ordered {
		if constraints.MaxCost > 0 && tier.CostPerToken > constraints.MaxCost {
			continue
		}
		hasAll := true
		for _, capability := range constraints.RequiredCapabilities {
			if !tier.HasCapability(capability) {
				hasAll = false
				break
			}
		}
		if !hasAll {
			continue
		}
		candidates = append(candidates, tier)
	}
	return candidates
}

// preferModel moves the tier backing model to the front, preserving the
// relative order of the rest.
func preferModel(candidates []domain.ModelTier, model string) []domain.ModelTier {
	for i, tier := range candidates {
		if tier.Model == model {
			reordered := make([]domain.ModelTier, 0, len(candidates))
			reordered = append(reordered, tier)
			reordered = append(reordered, candidates[:i]...)
			reordered = append(reordered, candidates[i+1:]...)
			return reordered
		}
	}
	return candidates
}

// Escalate re-pins a prior decision to the next costlier tier with its
// confidence discounted by 0.8. It returns nil if the decision is unknown
// (evicted or never made) or already at the costliest tier.
func (r *Router) Escalate(decisionID string) *domain.RoutingDecision {
	r.mu.Lock()

	prior, ok := r.decisions.Peek(decisionID)
	if !ok {
		r.mu.Unlock()
		return nil
	}

	ordered := r.orderedTiersLocked()
	index := -1
	for i, tier := range ordered {
		if tier.ID == prior.Tier.ID {
			index = i
			break
		}
	}
	if index < 0 || index == len(ordered)-1 {
		r.mu.Unlock()
		return nil
	}
	next := ordered[index+1]

	decision := domain.RoutingDecision{
		ID:         uuid.New().String(),
		Timestamp:  shared.Now(),
		Tier:       next,
		Confidence: prior.Confidence * 0.8,
		Depth:      prior.Depth,
		Reasoning: fmt.Sprintf("ESCALATED from tier %q to %q; confidence %.0f%% -> %.0f%%",
			prior.Tier.ID, next.ID, prior.Confidence*100, prior.Confidence*0.8*100),
		Modality: prior.Modality,
	}
	r.decisions.Add(decision.ID, decision)
	r.totalEscalations++
	r.mu.Unlock()

	r.bus.Emit(shared.RouteEscalatedPayload{
		DecisionID:    decision.ID,
		PriorDecision: decisionID,
		FromTierID:    prior.Tier.ID,
		ToTierID:      next.ID,
	})
	return &decision
}

// Route pins a decision to the modality's preferred model when a tier backs
// it, with fixed confidence 0.7; otherwise it falls back to a cascade at
// confidence 0.5. A pinned decision holds no route slot, so it cannot hit
// the concurrency limit; RecordOutcome's decrement floors at 0 to absorb
// the release for slotless decisions.
func (r *Router) Route(modality domain.Modality, constraints *domain.RouteConstraints) (*domain.RoutingDecision, error) {
	r.mu.Lock()
	route, haveRoute := r.modalityRoutes[modality]
	if haveRoute {
		for _, tier := range r.orderedTiersLocked() {
			if tier.Model != route.PreferredModel {
				continue
			}
			decision := domain.RoutingDecision{
				ID:         uuid.New().String(),
				Timestamp:  shared.Now(),
				Tier:       tier,
				Confidence: 0.7,
				Depth:      0,
				Reasoning: fmt.Sprintf("modality %q pinned to tier %q via preferred model %q",
					modality, tier.ID, route.PreferredModel),
				Modality: modality,
			}
			r.recordDecisionLocked(decision)
			r.mu.Unlock()

			r.bus.Emit(shared.RouteDecidedPayload{
				DecisionID: decision.ID,
				TierID:     decision.Tier.ID,
				Confidence: decision.Confidence,
				Depth:      decision.Depth,
			})
			return &decision, nil
		}
	}
	r.mu.Unlock()

	fallback := 0.5
	return r.Cascade(domain.CascadeRequest{
		Confidence:  &fallback,
		Constraints: constraints,
		Modality:    modality,
	})
}

// Adapt creates a LoRA adapter record.
func (r *Router) Adapt(spec domain.AdapterSpec) domain.LoRAAdapter {
	adapter := domain.LoRAAdapter{
		ID:          uuid.New().String(),
		Name:        spec.Name,
		TaskType:    spec.TaskType,
		BaseModel:   spec.BaseModel,
		SuccessRate: spec.SuccessRate,
		CreatedAt:   shared.Now(),
	}

	r.mu.Lock()
	r.adapters = append(r.adapters, adapter)
	r.mu.Unlock()
	return adapter
}

// SelectAdapter returns the best adapter for a task type (and base model, if
// given), ranked by success rate descending with usage count breaking ties
// closer than 0.01. Returns nil when nothing matches.
func (r *Router) SelectAdapter(taskType, baseModel string) *domain.LoRAAdapter {
	r.mu.Lock()
	defer r.mu.Unlock()

	matches := make([]domain.LoRAAdapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		if adapter.TaskType != taskType {
			continue
		}
		if baseModel != "" && adapter.BaseModel != baseModel {
			continue
		}
		matches = append(matches, adapter)
	}
	if len(matches) == 0 {
		return nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if math.Abs(matches[i].SuccessRate-matches[j].SuccessRate) < 0.01 {
			return matches[i].UsageCount > matches[j].UsageCount
		}
		return matches[i].SuccessRate > matches[j].SuccessRate
	})

	best := matches[0]
	return &best
}

// Adapters returns a copy of all adapter records in creation order.
func (r *Router) Adapters() []domain.LoRAAdapter {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.LoRAAdapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// Distill creates a distillation record with status "configured" and zeroed
// metrics. Nothing transitions it automatically; see UpdateDistillation.
func (r *Router) Distill(spec domain.DistillationSpec) domain.DistillationConfig {
	config := domain.DistillationConfig{
		ID:           uuid.New().String(),
		TeacherModel: spec.TeacherModel,
		StudentModel: spec.StudentModel,
		Status:       domain.DistillationConfigured,
		CreatedAt:    shared.Now(),
	}

	r.mu.Lock()
	r.distillations[config.ID] = config
	r.mu.Unlock()
	return config
}

// UpdateDistillation explicitly updates a distillation's status and/or
// metrics. It reports whether the record exists.
func (r *Router) UpdateDistillation(id string, status domain.DistillationStatus, metrics *domain.DistillationMetrics) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	config, ok := r.distillations[id]
	if !ok {
		return false
	}
	if status != "" {
		config.Status = status
	}
	if metrics != nil {
		config.Metrics = *metrics
	}
	r.distillations[id] = config
	return true
}

// Distillations returns all distillation records.
func (r *Router) Distillations() []domain.DistillationConfig {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.DistillationConfig, 0, len(r.distillations))
	for _, config := range r.distillations {
		out = append(out, config)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// Decision returns a stored decision by id.
func (r *Router) Decision(id string) (domain.RoutingDecision, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decisions.Peek(id)
}

// RecordOutcome feeds caller feedback for a decision back into the router:
// it releases the decision's route slot, nudges the tier's confidence
// threshold by an EMA step, and updates the first adapter backed by the
// decision's model. Unknown (or evicted) decisions are a no-op.
func (r *Router) RecordOutcome(decisionID string, outcome domain.Outcome) {
	r.mu.Lock()

	decision, ok := r.decisions.Peek(decisionID)
	if !ok {
		r.mu.Unlock()
		return
	}

	if r.activeRoutes > 0 {
		r.activeRoutes--
	}

	newThreshold := decision.Tier.ConfidenceThreshold
	if tier, live := r.tiers[decision.Tier.ID]; live {
		threshold := tier.ConfidenceThreshold
		// Success first, failure second; both branches are evaluated
		// independently and the failure step applies on top.
		if outcome.Success && outcome.Quality > 0.7 {
			target := math.Max(0, threshold-0.05)
			threshold = clamp01(threshold + r.config.LearningRate*(target-threshold))
		}
		if !outcome.Success || outcome.Quality < 0.3 {
			target := math.Min(1, threshold+0.05)
			threshold = clamp01(threshold + r.config.LearningRate*(target-threshold))
		}
		tier.ConfidenceThreshold = threshold
		r.tiers[tier.ID] = tier
		newThreshold = threshold
	}

	signal := 0.0
	if outcome.Success {
		signal = 1.0
	}
	for i := range r.adapters {
		if r.adapters[i].BaseModel == decision.Tier.Model {
			r.adapters[i].SuccessRate = r.adapters[i].SuccessRate*0.95 + signal*0.05
			r.adapters[i].UsageCount++
			break
		}
	}
	r.mu.Unlock()

	r.bus.Emit(shared.OutcomeRecordedPayload{
		DecisionID:   decisionID,
		TierID:       decision.Tier.ID,
		Success:      outcome.Success,
		NewThreshold: newThreshold,
	})
}

// Stats returns router-wide counters.
func (r *Router) Stats() domain.RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := domain.RouterStats{
		TotalRoutes:      r.totalRoutes,
		TotalEscalations: r.totalEscalations,
		ActiveRoutes:     r.activeRoutes,
		TierUsage:        make(map[string]int64, len(r.tierUsage)),
	}
	for id, count := range r.tierUsage {
		stats.TierUsage[id] = count
	}
	if r.confidenceCount > 0 {
		stats.AverageConfidence = r.confidenceSum / float64(r.confidenceCount)
	}
	return stats
}

// ActiveRoutes returns the number of in-flight route slots.
func (r *Router) ActiveRoutes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeRoutes
}

// Config returns the router configuration.
func (r *Router) Config() domain.RouterConfig {
	return r.config
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
