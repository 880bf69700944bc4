package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"rms-connector-service/internal/models"
)

// Config holds all configuration for the RMS connector service.
type Config struct {
	// Server
	Port        string
	Environment string

	// RMS database
	DatabaseURL string

	// Storefront credentials
	ShopifyStoreDomain string
	ShopifyAccessToken string
	ShopifyAPIVersion  string

	// Order polling
	EnableOrderPolling       bool
	PollingLookbackMinutes   int
	PollingIntervalMinutes   int
	PollingBatchSize         int
	PollingMaxPages          int
	AllowedFinancialStatuses []models.FinancialStatus

	// Customer policy
	AllowGuestOrders       bool
	RequireCustomerEmail   bool
	DefaultGuestCustomerID int64 // 0 when unset

	// RMS constants
	RmsStoreID     int
	ShippingItemID int64
}

// Load loads configuration from environment variables. A local .env file is
// honored when present.
func Load() *Config {
	_ = godotenv.Load()

	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbUser := getEnv("DB_USER", "postgres")
		dbPassword := getEnv("DB_PASSWORD", "")
		dbName := getEnv("DB_NAME", "rms")
		dbSSLMode := getEnv("DB_SSLMODE", "disable")

		databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			dbUser, dbPassword, dbHost, dbPort, dbName, dbSSLMode)
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		DatabaseURL: databaseURL,

		ShopifyStoreDomain: getEnv("SHOPIFY_STORE_DOMAIN", ""),
		ShopifyAccessToken: getEnv("SHOPIFY_ACCESS_TOKEN", ""),
		ShopifyAPIVersion:  getEnv("SHOPIFY_API_VERSION", ""),

		EnableOrderPolling:     getEnvAsBool("ENABLE_ORDER_POLLING", false),
		PollingLookbackMinutes: getEnvAsInt("ORDER_POLLING_LOOKBACK_MINUTES", 15),
		PollingIntervalMinutes: getEnvAsInt("ORDER_POLLING_INTERVAL_MINUTES", 10),
		PollingBatchSize:       getEnvAsInt("ORDER_POLLING_BATCH_SIZE", 50),
		PollingMaxPages:        getEnvAsInt("ORDER_POLLING_MAX_PAGES", 10),

		AllowedFinancialStatuses: getEnvAsStatuses("ALLOWED_ORDER_FINANCIAL_STATUSES", []models.FinancialStatus{
			models.FinancialPaid,
			models.FinancialPartiallyPaid,
			models.FinancialPartiallyRefunded,
		}),

		AllowGuestOrders:       getEnvAsBool("ALLOW_ORDERS_WITHOUT_CUSTOMER", true),
		RequireCustomerEmail:   getEnvAsBool("REQUIRE_CUSTOMER_EMAIL", false),
		DefaultGuestCustomerID: getEnvAsInt64("DEFAULT_CUSTOMER_ID_FOR_GUEST_ORDERS", 0),

		RmsStoreID:     getEnvAsInt("RMS_STORE_ID", 40),
		ShippingItemID: getEnvAsInt64("SHIPPING_ITEM_ID", 0),
	}

	if config.PollingBatchSize > 250 {
		log.Warnf("ORDER_POLLING_BATCH_SIZE %d exceeds the storefront page limit, clamping to 250", config.PollingBatchSize)
		config.PollingBatchSize = 250
	}
	if config.ShopifyStoreDomain == "" || config.ShopifyAccessToken == "" {
		log.Warn("SHOPIFY_STORE_DOMAIN / SHOPIFY_ACCESS_TOKEN not set, storefront calls will fail")
	}
	if config.ShippingItemID == 0 {
		log.Warn("SHIPPING_ITEM_ID not set, shipping charges cannot be written as order entries")
	}

	return config
}

// PollingInterval returns the scheduler period.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalMinutes) * time.Minute
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvAsInt64 gets an environment variable as an int64 with a default value.
func getEnvAsInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

// getEnvAsStatuses parses a comma-separated financial status list.
func getEnvAsStatuses(key string, defaultValue []models.FinancialStatus) []models.FinancialStatus {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var statuses []models.FinancialStatus
	for _, part := range strings.Split(value, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			statuses = append(statuses, models.FinancialStatus(part))
		}
	}
	if len(statuses) == 0 {
		return defaultValue
	}
	return statuses
}
