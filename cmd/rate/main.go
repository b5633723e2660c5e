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
	"flag"
	"fmt"

	"ubt-ledger-go/internal/common"
	"ubt-ledger-go/internal/config"
	"ubt-ledger-go/internal/money"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	pressureFlag := flag.Bool("pressure", false, "Apply one withdrawal-pressure step")
	resetFlag := flag.String("reset", "", "Administratively reset the sell rate (decimal string)")
	flag.Parse()

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

	if *resetFlag != "" {
		rate, err := money.Parse(*resetFlag)
		if err != nil {
			logger.Fatal("Invalid reset rate", zap.String("rate", *resetFlag), zap.Error(err))
		}
		if err := dbService.ResetRate(opCtx, rate); err != nil {
			logger.Fatal("Failed to reset rate", zap.Error(err))
		}
		fmt.Printf("Sell rate reset to %s\n", rate.String())
		return
	}

	if *pressureFlag {
		newRate, err := dbService.ApplyWithdrawalPressure(opCtx)
		if err != nil {
			logger.Fatal("Failed to apply withdrawal pressure", zap.Error(err))
		}
		fmt.Printf("Withdrawal pressure applied, sell rate now %s\n", newRate.String())
		return
	}

	state, err := dbService.GetRateState(opCtx)
	if err != nil {
		logger.Fatal("Failed to read rate state", zap.Error(err))
	}

	common.PrintHeader("EXCHANGE RATE STATE", common.DefaultWidth)
	fmt.Printf("Sell rate (UBT -> USDT): %s\n", state.CurrentRate.String())
	fmt.Printf("Buy rate  (USDT -> UBT): %s\n", state.BuyRate.String())
	fmt.Printf("Completed withdrawals:   %d\n", state.WithdrawalCount)
	fmt.Printf("Updated:                 %s\n", state.UpdatedAt.Format("2006-01-02 15:04:05"))
	common.PrintFooter("RATE QUERY COMPLETE", common.DefaultWidth)
}
