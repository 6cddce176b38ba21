package memory

// Layer names, also used as the fixed presentation order of the final
// context: critical first, then recent, session similarity, user profile.
const (
	LayerCritical = "critical"
	LayerRecent   = "recent"
	LayerSession  = "session"
	LayerProfile  = "user_profile"
)

// Priority weights drive both budget allocation order and nominal shares.
const (
	PriorityCritical = 0.9
	PrioritySession  = 0.8
	PriorityRecent   = 0.7
	PriorityProfile  = 0.6
)

// Config holds the engine's retrieval tunables.
type Config struct {
	// TotalBudgetTokens is the full context window the engine may fill.
	TotalBudgetTokens int

	// BufferFraction of the window is reserved and never allocated.
	BufferFraction float64

	// Per-layer budget fractions of the total window.
	RecentFraction   float64
	SessionFraction  float64
	ProfileFraction  float64
	CriticalFraction float64

	// RecentWindowSize bounds how many chunks the recent layer considers.
	RecentWindowSize int

	// CriticalThreshold is the minimum importance for the critical layer.
	CriticalThreshold float64

	// SearchLimit bounds similarity search candidates.
	SearchLimit int

	// RecencyHalfLifeHours scales the exponential recency decay.
	RecencyHalfLifeHours float64
}

// DefaultConfig returns the engine defaults: 20% recent, 40% session
// similarity, 20% profile, 15% critical, 5% buffer.
func DefaultConfig() Config {
	return Config{
		TotalBudgetTokens:    8000,
		BufferFraction:       0.05,
		RecentFraction:       0.20,
		SessionFraction:      0.40,
		ProfileFraction:      0.20,
		CriticalFraction:     0.15,
		RecentWindowSize:     50,
		CriticalThreshold:    0.8,
		SearchLimit:          20,
		RecencyHalfLifeHours: 24,
	}
}
