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
	"sort"

	"ubt-ledger-go/internal/common"
	"ubt-ledger-go/internal/config"
	"ubt-ledger-go/internal/database"
	"ubt-ledger-go/internal/models"

	"go.uber.org/zap"
)

func formatTransactionId(txId string) string {
	if txId == "" {
		return "none"
	}
	if len(txId) > 8 {
		return txId[:8] + "..."
	}
	return txId
}

func printBalances(balances map[string]string) {
	currencies := make([]string, 0, len(balances))
	for currency := range balances {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)

	for i, currency := range currencies {
		symbol := common.BoxPrefix(i == len(currencies)-1)
		fmt.Printf("%s %-6s: %20s\n", symbol, currency, balances[currency])
	}
}

func printTransactions(transactions []models.Transaction) {
	for i, tx := range transactions {
		symbol := common.BoxPrefix(i == len(transactions)-1)
		fmt.Printf("%s %-10s %-8s %20s  %-9s  %s (%s)\n",
			symbol,
			tx.Kind,
			tx.Currency,
			tx.Amount.String(),
			tx.Status,
			tx.CreatedAt.Format("2006-01-02 15:04:05"),
			formatTransactionId(tx.Id))
	}
}

func printUserReport(ctx context.Context, dbService *database.Service, userId string, historyLimit int) error {
	balances, err := dbService.GetBalance(ctx, userId)
	if err != nil {
		return fmt.Errorf("failed to get balances: %w", err)
	}

	fmt.Printf("\n┌─ User: %s\n", userId)
	fmt.Printf("│  Currencies: %d\n", len(balances))
	common.PrintBoxSeparator(78)

	rendered := make(map[string]string, len(balances))
	for currency, amount := range balances {
		rendered[currency] = amount.String()
	}
	printBalances(rendered)

	if historyLimit > 0 {
		transactions, err := dbService.GetTransactionHistory(ctx, userId, historyLimit, 0)
		if err != nil {
			return fmt.Errorf("failed to get transaction history: %w", err)
		}
		if len(transactions) > 0 {
			common.PrintBoxSeparator(78)
			printTransactions(transactions)
		}
	}

	return nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id to report on")
	historyFlag := flag.Int("history", 10, "Number of recent transactions to include (0 disables)")
	flag.Parse()

	if *userFlag == "" {
		logger.Fatal("Missing required -user flag")
	}

	logger.Info("Starting balance query")

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

	common.PrintHeader("USER BALANCE REPORT", common.DefaultWidth)

	if err := printUserReport(opCtx, dbService, *userFlag, *historyFlag); err != nil {
		logger.Fatal("Failed to build report", zap.String("user_id", *userFlag), zap.Error(err))
	}

	common.PrintFooter(fmt.Sprintf("REPORT COMPLETE: user %s", *userFlag), common.DefaultWidth)

	logger.Info("Balance query completed", zap.String("user_id", *userFlag))
}
