// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing

	// Invoicing
	InvoiceDueDays int // days between issue date and due date on new invoices

	// Invitations
	InvitationTTLDays int // days before a pending invitation expires

	// Notifications
	SiteURL string // base URL embedded in invitation and invoice links
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultInvoiceDueDays = 14
	DefaultInvitationTTL  = 7
	DefaultSiteURL        = "http://localhost:8080"
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		InvoiceDueDays:    getEnvInt("INVOICE_DUE_DAYS", DefaultInvoiceDueDays),
		InvitationTTLDays: getEnvInt("INVITATION_TTL_DAYS", DefaultInvitationTTL),
		SiteURL:           getEnv("SITE_URL", DefaultSiteURL),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.InvoiceDueDays <= 0 {
		return fmt.Errorf("INVOICE_DUE_DAYS must be positive, got %d", c.InvoiceDueDays)
	}
	if c.InvitationTTLDays <= 0 {
		return fmt.Errorf("INVITATION_TTL_DAYS must be positive, got %d", c.InvitationTTLDays)
	}
	return nil
}

// IsProduction returns true when running in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
