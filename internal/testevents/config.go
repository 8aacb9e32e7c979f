package testevents

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL    string        // Base URL of the service
	NumEvents  int           // Number of events to generate
	NumItems   int           // Size of the item id pool events are spread over
	MaxAge     time.Duration // Event times are spread over [now-MaxAge, now]
	TopN       int           // Number of trending entries to fetch and verify
	Workers    int           // Number of concurrent HTTP workers
	Timeout    time.Duration // HTTP request timeout
	Settle     time.Duration // How long to wait for async ingestion to drain
	Seed       uint64        // Seed for the event generator; 0 picks one
	OutputFile string        // Optional JSON file for the generated events
	Verbose    bool          // Log every failure
}

// Event is the POST /add_event body.
type Event struct {
	EventID   string  `json:"event_id,omitempty"`
	ItemID    string  `json:"item_id"`
	EventTime int64   `json:"event_time"`
	Weight    float64 `json:"weight"`
}

// Entry is a trending or rank row.
type Entry struct {
	Rank   int     `json:"rank,omitempty"`
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// AckResponse is the response to event submission.
type AckResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated   int
	EventsSubmitted   int
	EventsAccepted    int
	EventsQueued      int
	EventsDuplicate   int
	EventsRejected    int
	EventsFailed      int
	ItemsTouched      int
	RankingsRetrieved int
	TrendingEntries   int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
