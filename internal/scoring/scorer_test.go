package scoring

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/aqua-monitor/internal/entities"
)

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestScoreScenarios(t *testing.T) {
	tests := []struct {
		name            string
		in              [3]float64
		risk            entities.RiskLevel
		rate            float64
		formatted       string
		recommendations []string
	}{
		{
			name:            "all clear",
			in:              [3]float64{7.5, 5.0, 0.02},
			risk:            entities.RiskLow,
			rate:            0,
			formatted:       "0.0",
			recommendations: AllClearRecommendations,
		},
		{
			name:            "ammonia only",
			in:              [3]float64{7.5, 5.0, 0.10},
			risk:            entities.RiskHigh,
			rate:            2.0,
			formatted:       "2.0",
			recommendations: AmmoniaRecommendations,
		},
		{
			name:            "low oxygen and low pH",
			in:              [3]float64{6.0, 2.0, 0.02},
			risk:            entities.RiskMedium,
			rate:            37.5,
			formatted:       "37.5",
			recommendations: concat(OxygenRecommendations, []string{LowPHRecommendation}),
		},
		{
			name:            "ammonia and high pH",
			in:              [3]float64{9.0, 4.0, 0.20},
			risk:            entities.RiskHigh,
			rate:            13.5,
			formatted:       "13.5",
			recommendations: concat(AmmoniaRecommendations, []string{HighPHRecommendation}),
		},
		{
			name:            "every factor breached",
			in:              [3]float64{6.5, 3.0, 0.15},
			risk:            entities.RiskHigh,
			rate:            4 + 15 + 5,
			formatted:       "24.0",
			recommendations: concat(AmmoniaRecommendations, OxygenRecommendations, []string{LowPHRecommendation}),
		},
		{
			name:            "pH only",
			in:              [3]float64{8.6, 6.0, 0.0},
			risk:            entities.RiskMedium,
			rate:            5.5,
			formatted:       "5.5",
			recommendations: []string{HighPHRecommendation},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.in[0], tt.in[1], tt.in[2])

			assert.Equal(t, tt.risk, got.RiskLevel)
			assert.Equal(t, tt.risk.Color(), got.ColorCode)
			assert.InDelta(t, tt.rate, got.MortalityRatePercent, 1e-9)
			assert.Equal(t, tt.formatted, got.MortalityRate)
			assert.Equal(t, tt.recommendations, got.Recommendations)
			assert.Equal(t, entities.SensorReading{PH: tt.in[0], DissolvedOxygen: tt.in[1], Ammonia: tt.in[2]}, got.SensorReading)
		})
	}
}

func TestScoreThresholdBoundaries(t *testing.T) {
	// Thresholds are strict: values exactly on a limit are not breaches.
	got := Score(7.0, 4.0, 0.05)
	assert.Equal(t, entities.RiskLow, got.RiskLevel)
	assert.Equal(t, AllClearRecommendations, got.Recommendations)

	got = Score(8.5, 4.0, 0.05)
	assert.Equal(t, entities.RiskLow, got.RiskLevel)
}

func TestScoreClampsMortality(t *testing.T) {
	got := Score(0, 0, 10)
	assert.Equal(t, entities.RiskHigh, got.RiskLevel)
	assert.Equal(t, MaxMortalityRate, got.MortalityRatePercent)
	assert.Equal(t, "95.0", got.MortalityRate)

	got = Score(7.5, 5, math.Inf(1))
	assert.Equal(t, MaxMortalityRate, got.MortalityRatePercent)
}

func TestScoreProperties(t *testing.T) {
	phs := []float64{0, 3.5, 6.99, 7.0, 7.5, 8.5, 8.51, 10, 14}
	dos := []float64{0, 1.5, 3.99, 4.0, 6, 12}
	nh3s := []float64{0, 0.02, 0.05, 0.051, 0.5, 3}

	for _, ph := range phs {
		for _, do := range dos {
			for _, nh3 := range nh3s {
				got := Score(ph, do, nh3)

				require.NotEmpty(t, got.Recommendations, "ph=%v do=%v nh3=%v", ph, do, nh3)
				assert.LessOrEqual(t, got.MortalityRatePercent, MaxMortalityRate)
				assert.GreaterOrEqual(t, got.MortalityRatePercent, 0.0)
				assert.Equal(t, got.RiskLevel.Color(), got.ColorCode)

				switch {
				case nh3 > AmmoniaLimit:
					assert.Equal(t, entities.RiskHigh, got.RiskLevel)
					assert.Equal(t, AmmoniaRecommendations, got.Recommendations[:3])
				case do < OxygenMinimum:
					assert.Equal(t, entities.RiskMedium, got.RiskLevel)
					assert.Equal(t, OxygenRecommendations, got.Recommendations[:3])
				case ph < PHMinimum || ph > PHMaximum:
					assert.Equal(t, entities.RiskMedium, got.RiskLevel)
					assert.Len(t, got.Recommendations, 1)
				default:
					assert.Equal(t, entities.RiskLow, got.RiskLevel)
					assert.Equal(t, AllClearRecommendations, got.Recommendations)
				}
			}
		}
	}
}

func TestScoreDoesNotShareRecommendationSlices(t *testing.T) {
	got := Score(7.5, 5, 0.02)
	got.Recommendations[0] = "changed"
	assert.Equal(t, "✅ All parameters are within optimal range", AllClearRecommendations[0])
}

func TestScoreNaNPassesThrough(t *testing.T) {
	got := Score(math.NaN(), math.NaN(), math.NaN())
	assert.Equal(t, entities.RiskLow, got.RiskLevel)
	assert.Equal(t, AllClearRecommendations, got.Recommendations)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		reading entities.SensorReading
		wantErr bool
	}{
		{"typical", entities.SensorReading{PH: 7.5, DissolvedOxygen: 5, Ammonia: 0.02}, false},
		{"domain edges", entities.SensorReading{PH: 0, DissolvedOxygen: 0, Ammonia: 0}, false},
		{"pH 14", entities.SensorReading{PH: 14, DissolvedOxygen: 1, Ammonia: 1}, false},
		{"NaN pH", entities.SensorReading{PH: math.NaN(), DissolvedOxygen: 5, Ammonia: 0}, true},
		{"infinite ammonia", entities.SensorReading{PH: 7, DissolvedOxygen: 5, Ammonia: math.Inf(1)}, true},
		{"pH above 14", entities.SensorReading{PH: 14.1, DissolvedOxygen: 5, Ammonia: 0}, true},
		{"negative pH", entities.SensorReading{PH: -1, DissolvedOxygen: 5, Ammonia: 0}, true},
		{"negative oxygen", entities.SensorReading{PH: 7, DissolvedOxygen: -0.1, Ammonia: 0}, true},
		{"negative ammonia", entities.SensorReading{PH: 7, DissolvedOxygen: 5, Ammonia: -0.01}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.reading)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
