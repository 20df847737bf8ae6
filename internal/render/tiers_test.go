package render

import "testing"

func TestTiersOrderedAscending(t *testing.T) {
	tiers := Tiers()
	if len(tiers) != 4 {
		t.Fatalf("expected 4 tiers, got %d", len(tiers))
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].Width <= tiers[i-1].Width {
			t.Errorf("tier %s width %d not greater than previous %d",
				tiers[i].Tier, tiers[i].Width, tiers[i-1].Width)
		}
	}
}

func TestTierTable(t *testing.T) {
	tests := []struct {
		tier    Tier
		suffix  string
		width   int
		quality int
	}{
		{TierThumbnail, "thumb", 150, 70},
		{TierMedium, "med", 800, 85},
		{TierHigh, "high", 1600, 92},
		{TierUltra, "ultra", 3200, 95},
	}
	for _, tt := range tests {
		spec, ok := TierByName(string(tt.tier))
		if !ok {
			t.Fatalf("tier %s not found", tt.tier)
		}
		if spec.Suffix != tt.suffix || spec.Width != tt.width || spec.Quality != tt.quality {
			t.Errorf("tier %s: got %+v", tt.tier, spec)
		}
	}
}

func TestTierByNameAcceptsSuffix(t *testing.T) {
	spec, ok := TierByName("med")
	if !ok || spec.Tier != TierMedium {
		t.Fatalf("lookup by suffix failed: %+v ok=%v", spec, ok)
	}
	if _, ok := TierByName("giant"); ok {
		t.Error("expected unknown tier to miss")
	}
}
