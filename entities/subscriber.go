package entities

// Subscriber is one registered chat. Subscribers are created on first
// contact and never deleted; disabling only flips Enabled.
type Subscriber struct {
	ChatID     string
	Enabled    bool
	Thresholds map[string]Threshold
}
