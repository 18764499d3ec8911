package config

import (
	"os"
	"strconv"
	"time"
)

type CrowdfundConfig struct {
	// SinglePledgePerUser switches the pledge engine to the strict policy
	// that rejects a second pledge by the same backer on the same campaign.
	// The default allows unlimited top-up pledges.
	SinglePledgePerUser bool
	SweepInterval       time.Duration
	SettlementQueue     string
	PayoutCurrency      string
	MaxPledgeAmount     int64
	InstitutionBIC      string
}

func LoadCrowdfundConfig() *CrowdfundConfig {
	return &CrowdfundConfig{
		SinglePledgePerUser: getEnvAsBool("CROWDFUND_SINGLE_PLEDGE_PER_USER", false),
		SweepInterval:       getEnvAsDuration("CROWDFUND_SWEEP_INTERVAL", 1*time.Minute),
		SettlementQueue:     getEnv("CROWDFUND_SETTLEMENT_QUEUE", "settlement_queue"),
		PayoutCurrency:      getEnv("CROWDFUND_PAYOUT_CURRENCY", "USD"),
		MaxPledgeAmount:     getEnvAsInt64("CROWDFUND_MAX_PLEDGE_AMOUNT", 100_000_00),
		InstitutionBIC:      getEnv("CROWDFUND_INSTITUTION_BIC", "BIDCAST"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
