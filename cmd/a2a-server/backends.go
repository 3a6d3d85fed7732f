// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/go-a2a/a2akit/config"
	"github.com/go-a2a/a2akit/conversation"
	"github.com/go-a2a/a2akit/task"
)

func nopClose() error { return nil }

// openTaskManager builds the task manager on the configured store.
func openTaskManager(ctx context.Context, cfg config.TaskStorage, logger *slog.Logger) (*task.Manager, func() error, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.TaskDriverMemory:
		return task.NewManager(task.NewMemoryStore(), task.WithLogger(logger)), nopClose, nil
	case config.TaskDriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case config.TaskDriverMySQL:
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, nil, fmt.Errorf("unknown task driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s task store: %w", cfg.Driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Driver == config.TaskDriverSQLite {
		// sqlite allows one writer at a time.
		sqlDB.SetMaxOpenConns(1)
	}

	store, err := task.NewGORMStore(ctx, db)
	if err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	logger.InfoContext(ctx, "task store ready", "driver", cfg.Driver)
	return task.NewManager(store, task.WithLogger(logger)), sqlDB.Close, nil
}

// openConversationManager builds the conversation manager on the configured
// ledger.
func openConversationManager(ctx context.Context, cfg config.ConversationStorage, logger *slog.Logger) (*conversation.Manager, func() error, error) {
	switch cfg.Driver {
	case config.ConversationDriverMemory:
		return conversation.NewManager(conversation.NewMemoryLedger(), logger), nopClose, nil
	case config.ConversationDriverRedis:
		ledger, err := conversation.NewRedisLedger(ctx, conversation.RedisLedgerConfig{
			Address:   cfg.Addr,
			Password:  cfg.Password,
			DB:        cfg.DB,
			KeyPrefix: cfg.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.InfoContext(ctx, "conversation ledger ready", "driver", cfg.Driver, "addr", cfg.Addr)
		return conversation.NewManager(ledger, logger), ledger.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown conversation driver %q", cfg.Driver)
}
