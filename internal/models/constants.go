package models

const (
	// UserIDHeader carries the acting user on HTTP requests.
	UserIDHeader = "X-Sharer-User-Id"

	// DefaultPageSize is used when only "from" is supplied.
	DefaultPageSize = 10

	// TimestampLayout is the zone-less wire format accepted and produced for booking times.
	TimestampLayout = "2006-01-02T15:04:05"

	// WorkerQueueSize bounds the in-process Sheets task queue.
	WorkerQueueSize = 128

	// RateLimitRequests is how many requests a user may make per window.
	RateLimitRequests = 60

	// RateLimitWindow is the user rate limit window, in seconds.
	RateLimitWindow = 60

	// SheetsCacheRefresh is how often the Sheets row index is reloaded, in seconds.
	SheetsCacheRefresh = 10 * 60

	// ClientCacheTTL is how long the API client caches a booking, in seconds.
	ClientCacheTTL = 30
)

const ParseModeMarkdown = "Markdown"
