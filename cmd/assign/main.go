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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"ubt-ledger-go/internal/common"
	"ubt-ledger-go/internal/config"
	"ubt-ledger-go/internal/store"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id to assign an address to")
	currencyFlag := flag.String("currency", "", "Deposit currency (e.g. BTC)")
	flag.Parse()

	if *userFlag == "" || *currencyFlag == "" {
		logger.Fatal("Both -user and -currency are required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabase(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	opCtx, cancel := context.WithTimeout(ctx, cfg.Economy.OpTimeout)
	defer cancel()

	addr, err := dbService.AssignAddress(opCtx, *userFlag, *currencyFlag)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPoolExhausted):
			logger.Fatal("No unassigned addresses left for currency",
				zap.String("currency", *currencyFlag))
		case errors.Is(err, store.ErrInvalidCurrency):
			logger.Fatal("Unsupported currency", zap.String("currency", *currencyFlag))
		default:
			logger.Fatal("Failed to assign address", zap.Error(err))
		}
	}

	remaining, err := dbService.CountUnassigned(opCtx, *currencyFlag)
	if err != nil {
		logger.Warn("Failed to count remaining pool", zap.Error(err))
	}

	fmt.Printf("Assigned %s address %s to user %s (%d left in pool)\n",
		addr.Currency, addr.Address, *userFlag, remaining)
}
