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
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ubt-ledger-go/internal/common"
	"ubt-ledger-go/internal/config"
	"ubt-ledger-go/internal/database"

	"go.uber.org/zap"
)

// importFromCsv reads "address,currency" rows and feeds them into the pool.
func importFromCsv(ctx context.Context, dbService *database.Service, path string, opTimeout time.Duration) (imported, failed int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("unable to open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 2

	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, failed, fmt.Errorf("unable to read %s: %w", path, err)
		}
		line++

		address, currency := strings.TrimSpace(record[0]), strings.TrimSpace(record[1])
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		_, err = dbService.ImportAddress(opCtx, address, currency)
		cancel()
		if err != nil {
			failed++
			zap.L().Error("Failed to import address",
				zap.Int("line", line),
				zap.String("address", address),
				zap.String("currency", currency),
				zap.Error(err))
			continue
		}
		imported++
	}

	return imported, failed, nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	fileFlag := flag.String("file", "", "CSV file of unassigned addresses (address,currency per row)")
	flag.Parse()

	if *fileFlag == "" {
		logger.Fatal("Missing required -file flag")
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

	logger.Info("Importing addresses", zap.String("file", *fileFlag))
	imported, failed, err := importFromCsv(ctx, dbService, *fileFlag, cfg.Economy.OpTimeout)
	if err != nil {
		logger.Fatal("Import aborted", zap.Error(err))
	}

	if failed > 0 {
		logger.Warn("Import completed with failures",
			zap.Int("imported", imported),
			zap.Int("failed", failed))
	} else {
		logger.Info("Import completed successfully", zap.Int("imported", imported))
	}
}
