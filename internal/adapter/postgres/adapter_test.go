package postgres

import (
	"strings"
	"testing"

	"github.com/schemaforge-labs/schemaforge/internal/adapter"
)

func TestBuildPostgresDSN(t *testing.T) {
	dsn := buildPostgresDSN(adapter.Config{
		Host:     "db.internal",
		Port:     5433,
		Database: "app",
		Username: "forge",
		Password: "secret",
	})

	for _, want := range []string{
		"host=db.internal",
		"port=5433",
		"dbname=app",
		"user=forge",
		"password=secret",
		"sslmode=disable",
	} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}

	// Multi-statement DDL blocks need the simple query protocol.
	if !strings.Contains(dsn, "default_query_exec_mode=simple_protocol") {
		t.Errorf("dsn %q missing simple protocol option", dsn)
	}
}

func TestBuildPostgresDSNDefaults(t *testing.T) {
	dsn := buildPostgresDSN(adapter.Config{Database: "app"})

	if !strings.Contains(dsn, "host=localhost") {
		t.Errorf("dsn %q missing default host", dsn)
	}
	if !strings.Contains(dsn, "port=5432") {
		t.Errorf("dsn %q missing default port", dsn)
	}
	if strings.Contains(dsn, "user=") || strings.Contains(dsn, "password=") {
		t.Errorf("dsn %q has credentials without any configured", dsn)
	}
}

func TestBuildPostgresDSNSSLModeOverride(t *testing.T) {
	dsn := buildPostgresDSN(adapter.Config{
		Database: "app",
		Options:  map[string]string{"sslmode": "verify-full"},
	})
	if !strings.Contains(dsn, "sslmode=verify-full") {
		t.Errorf("dsn %q missing sslmode override", dsn)
	}
}

func TestAdapterCapabilities(t *testing.T) {
	a := New(nil)
	if a.DialectName() != "postgres" {
		t.Errorf("DialectName() = %q", a.DialectName())
	}
	if !a.SupportsTransactionalDDL() {
		t.Error("SupportsTransactionalDDL() = false")
	}
	if a.IsConnected() {
		t.Error("IsConnected() = true before Connect")
	}
}
