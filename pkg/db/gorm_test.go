package db

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestOpenGormSQLiteAppliesPool(t *testing.T) {
	gdb, err := OpenGorm(Config{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 3,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 3 {
		t.Fatalf("expected max open 3, got %d", got)
	}
}

func TestOpenGormUnknownDriver(t *testing.T) {
	if _, err := OpenGorm(Config{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
