// Package scoring ranks inbound leads with a deterministic additive model
// over independent attribute factors. The engine is a pure function of its
// configuration and the lead attributes: no clock, no storage, no side
// effects.
package scoring

import "leadflow_backend/internal/leads/domain"

// Priority is the triage band derived from a score.
type Priority string

const (
	PriorityCritical Priority = "critical" // score >= 80
	PriorityHigh     Priority = "high"     // 60 <= score < 80
	PriorityMedium   Priority = "medium"   // 40 <= score < 60
	PriorityLow      Priority = "low"      // score < 40
)

// Action is the recommended sales response for a priority band.
type Action struct {
	Text string `json:"text"`
	SLA  string `json:"sla"`
}

// Result holds scoring output and the per-factor contributions for debugging.
type Result struct {
	Score   int            `json:"score"`
	Factors map[string]int `json:"factors"`
}

// Engine computes lead scores from immutable configuration tables.
type Engine struct {
	cfg Config
}

// New creates a scoring engine with the given policy configuration.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// NewDefault creates a scoring engine with the production default policy.
func NewDefault() *Engine {
	return New(DefaultConfig())
}

// Score computes the lead score in [0, 100]. Each factor is looked up in its
// table, capped individually, and summed; the sum is clamped to 100. Unknown
// or missing attribute values contribute zero.
func (e *Engine) Score(attrs domain.Attributes) int {
	return e.ScoreDetail(attrs).Score
}

// ScoreDetail computes the score together with the factor breakdown.
func (e *Engine) ScoreDetail(attrs domain.Attributes) Result {
	factors := map[string]int{
		"company_size":      capped(e.cfg.CompanySize[attrs.CompanySize], e.cfg.CapCompanySize),
		"industry":          capped(e.cfg.Industry[attrs.Industry], e.cfg.CapIndustry),
		"consultation_type": capped(e.cfg.ConsultationType[attrs.ConsultationType], e.cfg.CapConsultationType),
		"products":          capped(attrs.DistinctProducts()*e.cfg.PointsPerProduct, e.cfg.CapProducts),
	}

	total := 0
	for _, v := range factors {
		total += v
	}
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}

	return Result{Score: total, Factors: factors}
}

// PriorityFor maps a score to its triage band. Band boundaries are closed on
// the lower edge: 80 is critical, 60 is high, 40 is medium.
func (e *Engine) PriorityFor(score int) Priority {
	switch {
	case score >= 80:
		return PriorityCritical
	case score >= 60:
		return PriorityHigh
	case score >= 40:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// RecommendedAction returns the configured sales response for the score's
// priority band.
func (e *Engine) RecommendedAction(score int) Action {
	return e.cfg.Actions[e.PriorityFor(score)]
}

func capped(value, limit int) int {
	if value < 0 {
		return 0
	}
	if value > limit {
		return limit
	}
	return value
}
