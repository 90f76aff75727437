package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelzeko/aqua-monitor/internal/entities"
	"github.com/abelzeko/aqua-monitor/internal/usecases"
)

const timeLayout = "2006-01-02 15:04 MST"

// FormatAssessment formats an assessment for a chat message
func FormatAssessment(a entities.RiskAssessment) string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("%s %s Risk\n", a.RiskLevel.Icon(), a.RiskLevel))
	result.WriteString(fmt.Sprintf("☠️ Estimated Mortality Rate: %s%%\n\n", a.MortalityRate))

	result.WriteString("📋 Recommendations:\n")
	for _, rec := range a.Recommendations {
		result.WriteString("• " + rec + "\n")
	}

	result.WriteString(fmt.Sprintf("\npH: %g | DO: %g mg/L | NH3: %g mg/L", a.PH, a.DissolvedOxygen, a.Ammonia))
	return result.String()
}

// FormatPondStatus formats the latest assessment of every pond
func FormatPondStatus(records []entities.AssessmentRecord, lastUpdate time.Time) string {
	if len(records) == 0 {
		return "No pond readings available yet."
	}

	var result strings.Builder
	result.WriteString("Pond status:\n\n")
	for _, rec := range records {
		a := rec.Assessment
		result.WriteString(fmt.Sprintf("📍 %s: %s %s risk (%s%%)\n", rec.Pond, a.RiskLevel.Icon(), a.RiskLevel, a.MortalityRate))
		result.WriteString(fmt.Sprintf("   pH %g | DO %g | NH3 %g\n", a.PH, a.DissolvedOxygen, a.Ammonia))
	}

	if !lastUpdate.IsZero() {
		result.WriteString(fmt.Sprintf("\n🕒 Last update: %s", lastUpdate.Format(timeLayout)))
	}
	return result.String()
}

// FormatHistory formats a list of past assessments, newest first
func FormatHistory(records []entities.AssessmentRecord) string {
	if len(records) == 0 {
		return "No assessments yet. Try /predict 7.5 5.0 0.02"
	}

	var result strings.Builder
	result.WriteString("Recent assessments:\n\n")
	for _, rec := range records {
		a := rec.Assessment
		result.WriteString(fmt.Sprintf("%s %s - %s risk, %s%% (pH %g, DO %g, NH3 %g)\n",
			rec.Timestamp.Format(timeLayout), a.RiskLevel.Icon(), a.RiskLevel, a.MortalityRate,
			a.PH, a.DissolvedOxygen, a.Ammonia))
	}
	return result.String()
}

// FormatDigest formats the daily digest
func FormatDigest(d *usecases.Digest) string {
	if d == nil || len(d.Ponds) == 0 {
		return "🌊 Daily pond digest: no readings in the last period."
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("🌊 Daily pond digest since %s\n\n", d.Since.Format(timeLayout)))
	for _, p := range d.Ponds {
		latest := p.Latest.Assessment
		result.WriteString(fmt.Sprintf("%s %s: worst %s, peak mortality %.1f%% over %d readings\n",
			p.WorstRisk.Icon(), p.Pond, p.WorstRisk, p.PeakMortalityRate, p.Readings))
		result.WriteString(fmt.Sprintf("   now %s (pH %g, DO %g, NH3 %g)\n",
			latest.RiskLevel, latest.PH, latest.DissolvedOxygen, latest.Ammonia))
	}
	return result.String()
}
