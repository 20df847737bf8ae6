// Package render turns document pages into encoded page images at fixed
// resolution tiers.
package render

// Tier identifies one of the four fixed resolution tiers every page is
// rendered at. Tiers are data, not behavior: the full configuration lives
// in the tier table below and is not user-configurable per job.
type Tier string

const (
	TierThumbnail Tier = "thumbnail"
	TierMedium    Tier = "medium"
	TierHigh      Tier = "high"
	TierUltra     Tier = "ultra"
)

// TierSpec is one row of the tier configuration table.
type TierSpec struct {
	Tier    Tier
	Suffix  string // storage path segment
	Width   int    // target width in pixels
	Quality int    // JPEG encode quality (0-100)
}

// tierTable is the fixed tier configuration, ordered smallest to largest.
var tierTable = []TierSpec{
	{Tier: TierThumbnail, Suffix: "thumb", Width: 150, Quality: 70},
	{Tier: TierMedium, Suffix: "med", Width: 800, Quality: 85},
	{Tier: TierHigh, Suffix: "high", Width: 1600, Quality: 92},
	{Tier: TierUltra, Suffix: "ultra", Width: 3200, Quality: 95},
}

// Tiers returns all tier specs in ascending width order.
func Tiers() []TierSpec {
	out := make([]TierSpec, len(tierTable))
	copy(out, tierTable)
	return out
}

// TierByName looks up a tier spec by tier name or path suffix.
func TierByName(name string) (TierSpec, bool) {
	for _, spec := range tierTable {
		if string(spec.Tier) == name || spec.Suffix == name {
			return spec, true
		}
	}
	return TierSpec{}, false
}
