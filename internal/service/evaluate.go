package service

import (
	"flight-arbitrage-api/internal/models"
	"flight-arbitrage-api/internal/rates"
)

// Evaluate compares the direct quote against the via-hub breakdown and
// produces the arbitrage verdict. It is a pure function of its inputs plus
// the minimum-savings threshold.
//
// When only one side exists the result still reports the present price, but
// the savings fields stay nil so a missing branch can never look like a
// zero-savings deal. The risk ladder is deterministic: HIGH below zero
// savings, MEDIUM below the threshold, LOW at or above it; hard risk flags
// upgrade MEDIUM to HIGH but never downgrade.
func Evaluate(direct *models.LegQuote, viaHub *models.ViaHubBreakdown, minSavingsPercent float64, riskFlags []string) *models.ArbitrageResult {
	if direct == nil && viaHub == nil {
		return nil
	}

	result := &models.ArbitrageResult{
		RiskLevel: models.RiskMedium,
		RiskFlags: riskFlags,
	}
	if direct != nil {
		directPrice := direct.PriceEUR
		result.DirectPriceEUR = &directPrice
	}
	if viaHub != nil {
		viaHubPrice := viaHub.TotalEUR
		result.ViaHubPriceEUR = &viaHubPrice
	}

	// Incomparable: one side missing, nothing to rank
	if direct == nil || viaHub == nil {
		result.RiskLevel = upgradeForFlags(result.RiskLevel, riskFlags)
		return result
	}

	directPrice := direct.PriceEUR
	viaHubPrice := viaHub.TotalEUR

	savingsEUR := rates.Round2(directPrice - viaHubPrice)
	savingsPercent := 0.0
	if directPrice > 0 {
		savingsPercent = rates.Round2((directPrice - viaHubPrice) / directPrice * 100)
	}
	result.SavingsEUR = &savingsEUR
	result.SavingsPercent = &savingsPercent

	result.IsDeal = directPrice > 0 &&
		savingsPercent >= minSavingsPercent &&
		savingsEUR > 0

	switch {
	case savingsPercent < 0:
		result.RiskLevel = models.RiskHigh
	case savingsPercent < minSavingsPercent:
		result.RiskLevel = models.RiskMedium
	default:
		result.RiskLevel = models.RiskLow
	}
	result.RiskLevel = upgradeForFlags(result.RiskLevel, riskFlags)

	return result
}

// upgradeForFlags raises MEDIUM to HIGH when hard risk flags are present.
// Separate ticketing is informational (every via-hub result carries it) and
// does not upgrade on its own; a visa requirement or a known short connection
// does.
func upgradeForFlags(level string, riskFlags []string) string {
	if level != models.RiskMedium {
		return level
	}
	for _, flag := range riskFlags {
		if flag == FlagVisaRequired || flag == FlagShortConnection {
			return models.RiskHigh
		}
	}
	return level
}
