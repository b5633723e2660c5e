/**
 * Copyright 2025-present UBT Platform, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"ubt-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	opTimeout, err := getEnvDuration("ECONOMY_OP_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	initialRate, err := getEnvDecimal("ECONOMY_INITIAL_RATE", "0.03")
	if err != nil {
		return nil, err
	}

	rateStep, err := getEnvDecimal("ECONOMY_RATE_STEP", "0.001")
	if err != nil {
		return nil, err
	}

	buyFactor, err := getEnvDecimal("ECONOMY_BUY_FACTOR", "1.1")
	if err != nil {
		return nil, err
	}

	if !initialRate.IsPositive() {
		return nil, fmt.Errorf("ECONOMY_INITIAL_RATE must be positive, got %s", initialRate.String())
	}
	if rateStep.IsNegative() {
		return nil, fmt.Errorf("ECONOMY_RATE_STEP cannot be negative, got %s", rateStep.String())
	}
	if !buyFactor.IsPositive() {
		return nil, fmt.Errorf("ECONOMY_BUY_FACTOR must be positive, got %s", buyFactor.String())
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "economy.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Economy: models.EconomyConfig{
			InitialRate:      initialRate,
			RateIncreaseStep: rateStep,
			BuyFactor:        buyFactor,
			OpTimeout:        opTimeout,
			CurrenciesFile:   getEnvString("CURRENCIES_FILE", ""),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
	}
	return d, nil
}
