package bot

import "sync/atomic"

type stats struct {
	storiesDelivered    atomic.Int64
	storyFailures       atomic.Int64
	imagesDelivered     atomic.Int64
	narrationsDelivered atomic.Int64
}

// Stats is a point-in-time snapshot of delivery counters.
type Stats struct {
	StoriesDelivered    int64 `json:"stories_delivered"`
	StoryFailures       int64 `json:"story_failures"`
	ImagesDelivered     int64 `json:"images_delivered"`
	NarrationsDelivered int64 `json:"narrations_delivered"`
	Sessions            int   `json:"sessions"`
}

// Stats returns current delivery counters and the session count.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		StoriesDelivered:    o.stats.storiesDelivered.Load(),
		StoryFailures:       o.stats.storyFailures.Load(),
		ImagesDelivered:     o.stats.imagesDelivered.Load(),
		NarrationsDelivered: o.stats.narrationsDelivered.Load(),
		Sessions:            o.store.Len(),
	}
}
