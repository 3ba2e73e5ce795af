// Package dbtest opens isolated in-memory SQLite databases migrated with the catalog models.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/catalogsync/pkg/db/models"
)

// Models lists every table the services touch, in dependency order.
func Models() []any {
	return []any{
		&models.Product{},
		&models.ProductVariant{},
		&models.StorefrontMapping{},
		&models.StorefrontEvent{},
		&models.StockAuditEntry{},
		&models.SaleLine{},
	}
}

// Open returns a fresh database named after the test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:catalogsync_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}
