package entitlements

import "strings"

// Unlimited marks a quota without an upper bound. Compare through IsUnlimited only.
const Unlimited = -1

// IsUnlimited reports whether a quota limit (or remaining amount) is the unlimited sentinel.
func IsUnlimited(n int) bool {
	return n == Unlimited
}

// FeatureSet is the fixed-shape allowance record derived from a plan tier.
type FeatureSet struct {
	ReportsPerMonth   int  `json:"reports_per_month"`
	TeamMembers       int  `json:"team_members"`
	APIAccess         bool `json:"api_access"`
	CustomBranding    bool `json:"custom_branding"`
	PrioritySupport   bool `json:"priority_support"`
	AdvancedAnalytics bool `json:"advanced_analytics"`
}

// Plan describes the economics of one tier.
type Plan struct {
	Tier       PlanTier   `json:"tier"`
	Name       string     `json:"name"`
	PriceCents int64      `json:"price_cents"`
	Currency   string     `json:"currency"`
	Features   FeatureSet `json:"features"`
}

var catalog = map[PlanTier]Plan{
	PlanFree: {
		Tier: PlanFree, Name: "Free", PriceCents: 0, Currency: "USD",
		Features: FeatureSet{ReportsPerMonth: 5, TeamMembers: 1},
	},
	PlanPro: {
		Tier: PlanPro, Name: "Pro", PriceCents: 1900, Currency: "USD",
		Features: FeatureSet{
			ReportsPerMonth: 50,
			TeamMembers:     3,
			APIAccess:       true,
			CustomBranding:  true,
		},
	},
	PlanBusiness: {
		Tier: PlanBusiness, Name: "Business", PriceCents: 4900, Currency: "USD",
		Features: FeatureSet{
			ReportsPerMonth:   200,
			TeamMembers:       10,
			APIAccess:         true,
			CustomBranding:    true,
			PrioritySupport:   true,
			AdvancedAnalytics: true,
		},
	},
	PlanEnterprise: {
		Tier: PlanEnterprise, Name: "Enterprise", PriceCents: 19900, Currency: "USD",
		Features: FeatureSet{
			ReportsPerMonth:   Unlimited,
			TeamMembers:       Unlimited,
			APIAccess:         true,
			CustomBranding:    true,
			PrioritySupport:   true,
			AdvancedAnalytics: true,
		},
	},
}

// FeaturesFor returns the allowances of a tier. Unknown tiers get the Free allowances.
func FeaturesFor(plan PlanTier) FeatureSet {
	return PlanFor(plan).Features
}

// PlanFor returns the catalog entry of a tier, defaulting to Free.
func PlanFor(plan PlanTier) Plan {
	if p, ok := catalog[plan]; ok {
		return p
	}
	return catalog[PlanFree]
}

// Catalog lists all plans in tier order.
func Catalog() []Plan {
	out := make([]Plan, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, catalog[t])
	}
	return out
}

// Feature names accepted by HasFeature.
const (
	FeatureAPIAccess         = "api_access"
	FeatureCustomBranding    = "custom_branding"
	FeaturePrioritySupport   = "priority_support"
	FeatureAdvancedAnalytics = "advanced_analytics"
)

// Enabled looks up a boolean feature. Unknown names are disabled.
func (f FeatureSet) Enabled(name string) bool {
	switch normalizeName(name) {
	case "apiaccess":
		return f.APIAccess
	case "custombranding":
		return f.CustomBranding
	case "prioritysupport":
		return f.PrioritySupport
	case "advancedanalytics":
		return f.AdvancedAnalytics
	default:
		return false
	}
}

// Limit returns the quota for a usage counter. api_calls has no numeric
// allowance and follows the api_access flag.
func (f FeatureSet) Limit(c Counter) int {
	switch c {
	case CounterReports:
		return f.ReportsPerMonth
	case CounterTeamMembers:
		return f.TeamMembers
	case CounterAPICalls:
		if f.APIAccess {
			return Unlimited
		}
		return 0
	default:
		return 0
	}
}

// Counter names a usage counter tracked per billing period.
type Counter string

const (
	CounterReports     Counter = "reports"
	CounterTeamMembers Counter = "team_members"
	CounterAPICalls    Counter = "api_calls"
)

// ParseCounter accepts "reports", "reportsUsed", "reports_used" and the like.
func ParseCounter(raw string) (Counter, bool) {
	n := strings.TrimSuffix(normalizeName(raw), "used")
	switch n {
	case "reports":
		return CounterReports, true
	case "teammembers":
		return CounterTeamMembers, true
	case "apicalls":
		return CounterAPICalls, true
	default:
		return "", false
	}
}

// Usage holds the per-period counters.
type Usage struct {
	ReportsUsed     int `json:"reports_used"`
	TeamMembersUsed int `json:"team_members_used"`
	APICallsUsed    int `json:"api_calls_used"`
}

// Get returns the current value of a counter.
func (u Usage) Get(c Counter) int {
	switch c {
	case CounterReports:
		return u.ReportsUsed
	case CounterTeamMembers:
		return u.TeamMembersUsed
	case CounterAPICalls:
		return u.APICallsUsed
	default:
		return 0
	}
}

// Column returns the storage column of a counter.
func (c Counter) Column() string {
	switch c {
	case CounterReports:
		return "reports_used"
	case CounterTeamMembers:
		return "team_members_used"
	case CounterAPICalls:
		return "api_calls_used"
	default:
		return ""
	}
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}
