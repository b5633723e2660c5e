package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Economy  EconomyConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// EconomyConfig holds the token-economy parameters: the initial UBT sell
// rate, the multiplicative step applied per completed withdrawal, and the
// factor deriving the buy rate from the sell rate.
type EconomyConfig struct {
	InitialRate      decimal.Decimal
	RateIncreaseStep decimal.Decimal
	BuyFactor        decimal.Decimal
	OpTimeout        time.Duration
	CurrenciesFile   string
}
