package service

import "github.com/stafflane/stafflane/internal/config"

type feeBreakdown struct {
	Gross      int64
	Platform   int64
	Processing int64
	Net        int64
}

// computeFees splits a gross charge into platform fee, processing fee and
// consultant net. Both fees round half-up on the basis-point product so the
// three parts always re-sum to the gross amount.
func computeFees(cfg config.BillingConfig, gross int64) feeBreakdown {
	platform := roundHalfUpBps(gross, cfg.PlatformFeeBps)
	processing := roundHalfUpBps(gross, cfg.GatewayFeeBps) + cfg.GatewayFixedFee

	return feeBreakdown{
		Gross:      gross,
		Platform:   platform,
		Processing: processing,
		Net:        gross - platform - processing,
	}
}

func roundHalfUpBps(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}
