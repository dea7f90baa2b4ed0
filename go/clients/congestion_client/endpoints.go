package congestion_client

import "time"

const (
	// DefaultBaseURL is where the traffic analyzer listens in the reference setup
	DefaultBaseURL = "http://localhost:8000"

	// API Endpoints
	CurrentCongestionEndpoint = "/api/congestion/current"

	// DefaultTimeout bounds a single fetch so a slow analyzer never outlives a poll interval
	DefaultTimeout = 5 * time.Second
)
