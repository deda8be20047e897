package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingPolicyHolder serves the live billing policy. The policy file is
// volume-mounted and hot-reloaded so fee and payout changes roll out
// without a restart; the env-derived values act as defaults when no file
// is present.
type BillingPolicyHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingPolicyHolder(cfg Config) (*BillingPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/stafflane/config") // Volume-mounted config
	v.AddConfigPath("/etc/stafflane")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("STAFFLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := cfg.Billing
	v.SetDefault("billing.platformFeeBps", defaults.PlatformFeeBps)
	v.SetDefault("billing.gatewayFeeBps", defaults.GatewayFeeBps)
	v.SetDefault("billing.gatewayFixedFee", defaults.GatewayFixedFee)
	v.SetDefault("billing.payoutMinimum", defaults.PayoutMinimum)
	v.SetDefault("billing.trialMinutes", defaults.TrialMinutes)
	v.SetDefault("billing.confirmRetryMax", defaults.ConfirmRetryMax)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	policy, err := unmarshalBillingPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := &BillingPolicyHolder{}
	holder.current.Store(policy)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := unmarshalBillingPolicy(v)
			if err != nil {
				log.Printf("[billing-policy] reload ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[billing-policy] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *BillingPolicyHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func unmarshalBillingPolicy(v *viper.Viper) (BillingConfig, error) {
	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return BillingConfig{}, err
	}
	if err := validateBillingPolicy(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func validateBillingPolicy(cfg BillingConfig) error {
	if cfg.PlatformFeeBps < 0 || cfg.PlatformFeeBps > 10000 {
		return errors.New("billing.platformFeeBps out of range")
	}
	if cfg.GatewayFeeBps < 0 || cfg.GatewayFeeBps > 10000 {
		return errors.New("billing.gatewayFeeBps out of range")
	}
	if cfg.GatewayFixedFee < 0 {
		return errors.New("billing.gatewayFixedFee cannot be negative")
	}
	if cfg.PayoutMinimum < 0 {
		return errors.New("billing.payoutMinimum cannot be negative")
	}
	return nil
}
