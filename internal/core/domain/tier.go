package domain

// QualityTier is one rung of the fixed sending-quality ladder. The tier is
// shared across all peer links of one participant and applies to the local
// capture constraints and every outbound video sender's bitrate cap.
type QualityTier struct {
	Label      string
	Width      int
	Height     int
	Framerate  int
	MaxBitrate int // bps
}

// Tiers is ordered highest quality first; stepping down means moving to a
// higher index.
var Tiers = []QualityTier{
	{Label: "high", Width: 1280, Height: 720, Framerate: 30, MaxBitrate: 2_500_000},
	{Label: "medium", Width: 960, Height: 540, Framerate: 30, MaxBitrate: 1_200_000},
	{Label: "low", Width: 640, Height: 360, Framerate: 24, MaxBitrate: 700_000},
	{Label: "minimal", Width: 320, Height: 240, Framerate: 15, MaxBitrate: 300_000},
}

// ClampTierIndex bounds an index into Tiers.
func ClampTierIndex(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(Tiers) {
		return len(Tiers) - 1
	}
	return i
}
