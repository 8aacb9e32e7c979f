package testevents

import "time"

// Defaults used by the load command.
const (
	DefaultNumEvents = 10_000
	DefaultNumItems  = 500
	DefaultTopN      = 50
	DefaultMaxAge    = time.Hour
	DefaultTimeout   = 10 * time.Second
	DefaultSettle    = 5 * time.Second
)

const (
	settlePollInterval = 100 * time.Millisecond
	percentage         = 100
)

// HTTP status code bounds.
const (
	StatusOK              = 200
	StatusMultipleChoices = 300
)
