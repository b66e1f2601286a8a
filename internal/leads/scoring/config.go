package scoring

// Config is the immutable policy data for the scoring engine: the per-factor
// lookup tables, the per-factor caps applied before summation, and the
// recommended-action table keyed by priority band. Policy changes happen by
// supplying a different Config, not by touching the algorithm.
type Config struct {
	CompanySize      map[string]int
	Industry         map[string]int
	ConsultationType map[string]int

	// PointsPerProduct is awarded per distinct interested product code.
	PointsPerProduct int

	// Per-factor caps, applied individually before the factor sums are added.
	// The capped maxima may sum past 100; the final clamp is what bounds the
	// score, so it is load-bearing for non-default tables.
	CapCompanySize      int
	CapIndustry         int
	CapConsultationType int
	CapProducts         int

	Actions map[Priority]Action
}

// DefaultConfig returns the scoring policy used in production.
func DefaultConfig() Config {
	return Config{
		CompanySize: map[string]int{
			"1-10":     5,
			"11-50":    10,
			"51-200":   15,
			"201-500":  20,
			"501-1000": 25,
			"1000+":    30,
		},
		Industry: map[string]int{
			"Financial Services": 25,
			"Healthcare":         22,
			"Technology":         20,
			"Manufacturing":      18,
			"Retail":             15,
			"Education":          12,
			"Government":         10,
			"Nonprofit":          8,
			"Other":              5,
		},
		ConsultationType: map[string]int{
			"Enterprise Implementation": 25,
			"Digital Transformation":    22,
			"Systems Integration":       20,
			"Process Automation":        18,
			"Custom Development":        15,
			"Technical Audit":           12,
			"Discovery Call":            8,
		},
		PointsPerProduct:    5,
		CapCompanySize:      30,
		CapIndustry:         25,
		CapConsultationType: 25,
		CapProducts:         20,
		Actions: map[Priority]Action{
			PriorityCritical: {
				Text: "Contact immediately and route to a senior representative",
				SLA:  "immediate",
			},
			PriorityHigh: {
				Text: "Follow up with a tailored proposal",
				SLA:  "24h",
			},
			PriorityMedium: {
				Text: "Schedule a discovery call",
				SLA:  "48h",
			},
			PriorityLow: {
				Text: "Add to the nurture track",
				SLA:  "1w",
			},
		},
	}
}
