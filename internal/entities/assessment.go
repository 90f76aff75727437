// Package entities contains the core domain objects for the aqua-monitor application
package entities

import (
	"fmt"
	"strings"
	"time"
)

// Assessment sources
const (
	SourceWeb      = "web"
	SourceTelegram = "telegram"
	SourceFeed     = "feed"
)

// RiskLevel is the ordered risk classification: Low < Medium < High
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
)

// String returns the display name of the risk level
func (r RiskLevel) String() string {
	switch r {
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	default:
		return "Low"
	}
}

// Color returns the CSS color tied to the risk level
func (r RiskLevel) Color() string {
	switch r {
	case RiskMedium:
		return "#FFD93D"
	case RiskHigh:
		return "#FF6B6B"
	default:
		return "#4ECDC4"
	}
}

// Icon returns the emoji shown next to the risk level
func (r RiskLevel) Icon() string {
	switch r {
	case RiskMedium:
		return "⚠️"
	case RiskHigh:
		return "🚨"
	default:
		return "✅"
	}
}

// ParseRiskLevel converts a stored name back into a RiskLevel
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	default:
		return RiskLow, fmt.Errorf("unknown risk level %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so JSON carries the name
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *RiskLevel) UnmarshalText(text []byte) error {
	level, err := ParseRiskLevel(string(text))
	if err != nil {
		return err
	}
	*r = level
	return nil
}

// SensorReading holds one set of water-quality readings
type SensorReading struct {
	PH              float64 `json:"ph"`
	DissolvedOxygen float64 `json:"dissolvedOxygen"` // mg/L
	Ammonia         float64 `json:"ammonia"`         // NH3, mg/L
}

// RiskAssessment is the result of scoring a SensorReading
type RiskAssessment struct {
	RiskLevel            RiskLevel `json:"riskLevel"`
	ColorCode            string    `json:"colorCode"`
	MortalityRatePercent float64   `json:"mortalityRatePercent"`
	MortalityRate        string    `json:"mortalityRate"` // one decimal place
	Recommendations      []string  `json:"recommendations"`
	SensorReading
}

// AssessmentRecord is a stored assessment
type AssessmentRecord struct {
	ID         string
	Source     string // web, telegram or feed
	Pond       string // Pond name, empty for ad-hoc readings
	Assessment RiskAssessment
	Timestamp  time.Time
}
