package eventbus

// DropRate returns the share of deliveries dropped across all subscribers
// (0.0 to 1.0). Returns 0.0 when nothing has been delivered yet.
func DropRate(stats Stats) float64 {
	total := stats.TotalSent + stats.TotalDropped
	if total == 0 {
		return 0.0
	}
	return float64(stats.TotalDropped) / float64(total)
}

// SubscriberDropRate returns the drop rate for one subscriber.
// Returns 0.0 if the subscriber is unknown or has received nothing.
func SubscriberDropRate(stats Stats, subscriberID string) float64 {
	sub, exists := stats.Subscribers[subscriberID]
	if !exists {
		return 0.0
	}

	total := sub.Sent + sub.Dropped
	if total == 0 {
		return 0.0
	}
	return float64(sub.Dropped) / float64(total)
}
