// Package routing defines the data model for confidence-gated model tier
// routing: tiers, cascade requests, routing decisions, LoRA adapters,
// modality routes, and distillation records.
package routing

// Modality identifies an input modality for routing.
type Modality string

const (
	ModalityText           Modality = "text"
	ModalityCode           Modality = "code"
	ModalityImage          Modality = "image"
	ModalityAudio          Modality = "audio"
	ModalityVideo          Modality = "video"
	ModalityMultimodal     Modality = "multimodal"
	ModalityStructuredData Modality = "structured-data"
)

// ModelTier is a cost/capability bucket for a backing model. Tiers are
// totally ordered by CostPerToken ascending; the order is recomputed on
// every read so threshold mutation is always reflected.
type ModelTier struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Model               string   `json:"model"`
	ConfidenceThreshold float64  `json:"confidenceThreshold"`
	CostPerToken        float64  `json:"costPerToken"`
	MaxTokens           int      `json:"maxTokens"`
	LatencyMs           int64    `json:"latencyMs"`
	Capabilities        []string `json:"capabilities,omitempty"`
}

// Clone returns a deep copy of the tier.
func (t ModelTier) Clone() ModelTier {
	out := t
	if t.Capabilities != nil {
		out.Capabilities = make([]string, len(t.Capabilities))
		copy(out.Capabilities, t.Capabilities)
	}
	return out
}

// HasCapability reports whether the tier advertises a capability.
func (t ModelTier) HasCapability(capability string) bool {
	for _, c := range t.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// RouteConstraints narrows the candidate tier set for a cascade.
type RouteConstraints struct {
	// RequiredCapabilities must all be present on a candidate tier.
	RequiredCapabilities []string `json:"requiredCapabilities,omitempty"`

	// MaxCost excludes tiers whose CostPerToken exceeds it. Zero means no
	// cost constraint.
	MaxCost float64 `json:"maxCost,omitempty"`

	// PreferredModel moves the tier backing this model to the front of the
	// candidate order; it never filters.
	PreferredModel string `json:"preferredModel,omitempty"`
}

// CascadeRequest asks the router for a tier decision.
type CascadeRequest struct {
	Task        string            `json:"task"`
	Confidence  *float64          `json:"confidence,omitempty"`
	Depth       int               `json:"depth"`
	Constraints *RouteConstraints `json:"constraints,omitempty"`
	Modality    Modality          `json:"modality,omitempty"`
}

// RoutingDecision is the outcome of a cascade, route, or escalation. Tier is
// a snapshot taken at decision time; later tier mutation is not reflected.
type RoutingDecision struct {
	ID         string    `json:"id"`
	Timestamp  int64     `json:"timestamp"`
	Tier       ModelTier `json:"tier"`
	Confidence float64   `json:"confidence"`
	Depth      int       `json:"depth"`
	Reasoning  string    `json:"reasoning"`
	Modality   Modality  `json:"modality,omitempty"`
}

// AdapterSpec describes a LoRA adapter to create.
type AdapterSpec struct {
	Name        string  `json:"name"`
	TaskType    string  `json:"taskType"`
	BaseModel   string  `json:"baseModel"`
	SuccessRate float64 `json:"successRate,omitempty"`
}

// LoRAAdapter is a low-rank adaptation record. SuccessRate moves by EMA from
// recorded outcomes.
type LoRAAdapter struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	TaskType    string  `json:"taskType"`
	BaseModel   string  `json:"baseModel"`
	SuccessRate float64 `json:"successRate"`
	UsageCount  int64   `json:"usageCount"`
	CreatedAt   int64   `json:"createdAt"`
}

// ModalityRoute is a static per-modality model preference.
type ModalityRoute struct {
	Modality       Modality `json:"modality"`
	PreferredModel string   `json:"preferredModel"`
	FallbackModel  string   `json:"fallbackModel,omitempty"`
	MaxTokens      int      `json:"maxTokens,omitempty"`
}

// DistillationStatus tracks the lifecycle of a distillation record. There
// are no automated transitions; status only changes via UpdateDistillation.
type DistillationStatus string

const (
	DistillationConfigured DistillationStatus = "configured"
	DistillationRunning    DistillationStatus = "running"
	DistillationCompleted  DistillationStatus = "completed"
	DistillationFailed     DistillationStatus = "failed"
)

// DistillationMetrics holds the measured results of a distillation.
type DistillationMetrics struct {
	QualityRetention float64 `json:"qualityRetention"`
	Speedup          float64 `json:"speedup"`
	CostReduction    float64 `json:"costReduction"`
}

// DistillationSpec describes a distillation to configure.
type DistillationSpec struct {
	TeacherModel string `json:"teacherModel"`
	StudentModel string `json:"studentModel"`
}

// DistillationConfig is a pure record of a teacher/student distillation.
type DistillationConfig struct {
	ID           string              `json:"id"`
	TeacherModel string              `json:"teacherModel"`
	StudentModel string              `json:"studentModel"`
	Status       DistillationStatus  `json:"status"`
	Metrics      DistillationMetrics `json:"metrics"`
	CreatedAt    int64               `json:"createdAt"`
}

// Outcome is caller feedback for a routing decision.
type Outcome struct {
	Success    bool    `json:"success"`
	Quality    float64 `json:"quality"`
	LatencyMs  int64   `json:"latencyMs,omitempty"`
	TokensUsed int64   `json:"tokensUsed,omitempty"`
}

// RouterConfig holds configuration for creating a Router.
type RouterConfig struct {
	// DefaultConfidenceThreshold is used as the request confidence when a
	// cascade request carries none.
	DefaultConfidenceThreshold float64 `json:"defaultConfidenceThreshold"`

	// LearningRate scales the adaptive threshold EMA step.
	LearningRate float64 `json:"learningRate"`

	// DepthAwareRouting boosts confidence by 0.15 per cascade depth.
	DepthAwareRouting bool `json:"depthAwareRouting"`

	// MaxCascadeDepth rejects requests at or beyond this depth.
	MaxCascadeDepth int `json:"maxCascadeDepth"`

	// MaxConcurrentRoutes bounds in-flight routes. Slots are released only
	// by RecordOutcome.
	MaxConcurrentRoutes int `json:"maxConcurrentRoutes"`

	// DecisionHistorySize bounds the decision map; the oldest decision is
	// evicted once full.
	DecisionHistorySize int `json:"decisionHistorySize"`
}

// DefaultRouterConfig returns the default router configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		DefaultConfidenceThreshold: 0.6,
		LearningRate:               0.1,
		DepthAwareRouting:          true,
		MaxCascadeDepth:            5,
		MaxConcurrentRoutes:        20,
		DecisionHistorySize:        1000,
	}
}

// RouterStats aggregates router-wide metrics.
type RouterStats struct {
	TotalRoutes       int64            `json:"totalRoutes"`
	TotalEscalations  int64            `json:"totalEscalations"`
	ActiveRoutes      int              `json:"activeRoutes"`
	TierUsage         map[string]int64 `json:"tierUsage"`
	AverageConfidence float64          `json:"averageConfidence"`
}
