package cli

import (
	"github.com/millwright-ai/millwright/internal/config"
	"github.com/millwright-ai/millwright/internal/logging"
)

// Emit startup warnings derived from non-fatal config conditions.
func warnStartupConditions(cfg *config.Config, report *config.ValidationReport) {
	if report != nil {
		for _, warning := range report.Warnings {
			logging.Logger().Warn(warning)
		}
	}
	if cfg == nil {
		return
	}

	if cfg.Costs.DailyLimit <= 0 && cfg.Costs.MonthlyLimit <= 0 {
		logging.Logger().Warn("costs.daily_limit and costs.monthly_limit are both unset. spend warnings are disabled")
	}
}
