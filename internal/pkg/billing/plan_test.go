package billing

import (
	"testing"

	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
)

func TestPlanFromName(t *testing.T) {
	tests := []struct {
		in     string
		want   entitlements.PlanTier
		wantOK bool
	}{
		{in: "ReportFox Pro", want: entitlements.PlanPro, wantOK: true},
		{in: "BUSINESS (monthly)", want: entitlements.PlanBusiness, wantOK: true},
		{in: "enterprise-annual", want: entitlements.PlanEnterprise, wantOK: true},
		{in: "Pro to Business upgrade", want: entitlements.PlanBusiness, wantOK: true},
		{in: "Professional", wantOK: false},
		{in: "", wantOK: false},
	}

	for _, tt := range tests {
		got, ok := planFromName(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("planFromName(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalizeProvider(t *testing.T) {
	if got := normalizeProvider("  PayPal "); got != "paypal" {
		t.Fatalf("normalizeProvider = %q, want paypal", got)
	}
}
