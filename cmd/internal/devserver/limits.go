package devserver

import "time"

const (
	// Max bytes per websocket frame read.
	maxFrameBytes = 64 << 10

	// Max message text length (runes).
	maxMessageChars = 4000

	// Max JSON request body on the REST endpoints.
	maxBodyBytes = 16 << 10
)

const (
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)
