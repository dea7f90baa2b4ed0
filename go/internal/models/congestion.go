package models

// CongestionLevel is the categorical traffic density reported by the analyzer.
type CongestionLevel string

const (
	CongestionLow      CongestionLevel = "low"
	CongestionMedium   CongestionLevel = "medium"
	CongestionHigh     CongestionLevel = "high"
	CongestionVeryHigh CongestionLevel = "very_high"
	CongestionUnknown  CongestionLevel = "unknown"
)

// CongestionSample is a single reading from the congestion service. It is applied and discarded.
type CongestionSample struct {
	Level             CongestionLevel `json:"congestion_level"`
	VehiclesPerMinute float64         `json:"vehicles_per_minute"`
	Timestamp         string          `json:"timestamp"`
	Location          string          `json:"location"`
}
