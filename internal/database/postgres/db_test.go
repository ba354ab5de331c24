package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/config"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), DBConfig{})
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestConfigFromUsesAssembledDSN(t *testing.T) {
	got := ConfigFrom(config.DatabaseConfig{
		Name: "stocks", User: "bot", Password: "pw", Host: "db", Port: 5433, SSLMode: "disable", MaxOpenConns: 7,
	})
	if got.DSN != "postgres://bot:pw@db:5433/stocks?sslmode=disable" {
		t.Fatalf("DSN = %q", got.DSN)
	}
	if got.MaxOpenConns != 7 {
		t.Fatalf("MaxOpenConns = %d", got.MaxOpenConns)
	}
}

func TestPingCheck(t *testing.T) {
	if err := PingCheck(nil)(context.Background()); err == nil {
		t.Fatal("PingCheck(nil) expected error")
	}

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	mock.ExpectPing()
	if err := PingCheck(db)(context.Background()); err != nil {
		t.Fatalf("PingCheck() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
