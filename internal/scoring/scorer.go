// Package scoring maps water-quality readings to a risk assessment.
//
// The thresholds and coefficients are fixed heuristics, not a calibrated model.
// Score never fails; Validate is a separate, opt-in check for callers that
// accept readings from users or remote feeds.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/abelzeko/aqua-monitor/internal/entities"
)

// Thresholds in mg/L for ammonia and dissolved oxygen
const (
	AmmoniaLimit     = 0.05
	OxygenMinimum    = 4.0
	PHMinimum        = 7.0
	PHMaximum        = 8.5
	PHTarget         = 7.5
	MaxMortalityRate = 95.0
)

// Mortality contribution per unit of breach
const (
	ammoniaMortality = 40.0
	oxygenMortality  = 15.0
	phMortality      = 5.0
)

const (
	phDomainMinimum = 0.0
	phDomainMaximum = 14.0
)

// Recommendation texts, in the order they are emitted
var (
	AmmoniaRecommendations = []string{
		"⚠️ Immediate water change required! NH3 is toxic.",
		"💧 Add zeolite to absorb ammonia",
		"🔄 Increase water circulation",
	}
	OxygenRecommendations = []string{
		"🌊 Increase aeration immediately",
		"⚙️ Check aerator functionality",
		"🐟 Reduce feeding temporarily",
	}
	LowPHRecommendation  = "📈 pH too low - add lime to increase pH"
	HighPHRecommendation = "📉 pH too high - partial water change needed"

	AllClearRecommendations = []string{
		"✅ All parameters are within optimal range",
		"👍 Continue regular monitoring",
		"📊 Maintain current water management",
	}
)

// ErrInvalidInput is returned by Validate for readings outside the modeled domain
var ErrInvalidInput = errors.New("invalid input")

// Score evaluates ammonia, then oxygen, then pH, accumulating a mortality
// estimate and recommendations. The risk level is only ever raised.
func Score(ph, dissolvedOxygen, ammonia float64) entities.RiskAssessment {
	risk := entities.RiskLow
	mortalityRate := 0.0
	var recommendations []string

	if ammonia > AmmoniaLimit {
		risk = entities.RiskHigh
		mortalityRate += (ammonia - AmmoniaLimit) * ammoniaMortality
		recommendations = append(recommendations, AmmoniaRecommendations...)
	}

	if dissolvedOxygen < OxygenMinimum {
		if risk < entities.RiskMedium {
			risk = entities.RiskMedium
		}
		mortalityRate += (OxygenMinimum - dissolvedOxygen) * oxygenMortality
		recommendations = append(recommendations, OxygenRecommendations...)
	}

	if ph < PHMinimum || ph > PHMaximum {
		if risk == entities.RiskLow {
			risk = entities.RiskMedium
		}
		mortalityRate += math.Abs(PHTarget-ph) * phMortality
		if ph < PHMinimum {
			recommendations = append(recommendations, LowPHRecommendation)
		} else {
			recommendations = append(recommendations, HighPHRecommendation)
		}
	}

	// Upper bound only; there is no floor.
	mortalityRate = math.Min(mortalityRate, MaxMortalityRate)

	if risk == entities.RiskLow {
		recommendations = append(recommendations, AllClearRecommendations...)
	}

	return entities.RiskAssessment{
		RiskLevel:            risk,
		ColorCode:            risk.Color(),
		MortalityRatePercent: mortalityRate,
		MortalityRate:        FormatMortalityRate(mortalityRate),
		Recommendations:      recommendations,
		SensorReading: entities.SensorReading{
			PH:              ph,
			DissolvedOxygen: dissolvedOxygen,
			Ammonia:         ammonia,
		},
	}
}

// ScoreReading is Score for a SensorReading value
func ScoreReading(reading entities.SensorReading) entities.RiskAssessment {
	return Score(reading.PH, reading.DissolvedOxygen, reading.Ammonia)
}

// FormatMortalityRate formats a rate to one decimal place
func FormatMortalityRate(rate float64) string {
	s := fmt.Sprintf("%.1f", rate)
	if s == "-0.0" {
		return "0.0"
	}
	return s
}

// Validate rejects non-finite values, pH outside [0, 14] and negative
// oxygen or ammonia concentrations.
func Validate(reading entities.SensorReading) error {
	fields := []struct {
		name  string
		value float64
	}{
		{"pH", reading.PH},
		{"dissolved oxygen", reading.DissolvedOxygen},
		{"ammonia", reading.Ammonia},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s must be a finite number", ErrInvalidInput, f.name)
		}
	}

	if reading.PH < phDomainMinimum || reading.PH > phDomainMaximum {
		return fmt.Errorf("%w: pH %.2f is outside 0-14", ErrInvalidInput, reading.PH)
	}
	if reading.DissolvedOxygen < 0 {
		return fmt.Errorf("%w: dissolved oxygen cannot be negative", ErrInvalidInput)
	}
	if reading.Ammonia < 0 {
		return fmt.Errorf("%w: ammonia cannot be negative", ErrInvalidInput)
	}
	return nil
}
