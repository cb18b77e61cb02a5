package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"SERVER_PORT", "DB_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
	"DB_SSLMODE", "DB_PATH", "JWT_SECRET", "JWT_EXPIRY_HOURS", "AUTH_REQUIRE_FOR_WRITES",
	"REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "CORS_ALLOWED_ORIGINS",
	"LOG_LEVEL", "LOG_FORMAT", "MQTT_URL", "MQTT_TOPIC", "METRICS_ADDR",
}

// clearEnv unsets every key LoadConfig reads and points ENV_FILE at a
// file that does not exist.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		if old, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, old) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{
		Driver:   DriverPostgres,
		Host:     "localhost",
		Port:     5432,
		User:     "glacierguard",
		Password: "secret",
		Name:     "glacierguard",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=glacierguard password=secret dbname=glacierguard sslmode=disable"
	assert.Equal(t, expected, db.GetDSN())
}

func TestGetDSNCustomValues(t *testing.T) {
	db := DatabaseConfig{
		Driver:   DriverPostgres,
		Host:     "db.example.com",
		Port:     5433,
		User:     "admin",
		Password: "p@ss",
		Name:     "mydb",
		SSLMode:  "require",
	}
	dsn := db.GetDSN()

	assert.Contains(t, dsn, "host=db.example.com")
	assert.Contains(t, dsn, "port=5433")
	assert.Contains(t, dsn, "sslmode=require")
}

func TestGetDSNSQLite(t *testing.T) {
	db := DatabaseConfig{Driver: DriverSQLite, Path: "/var/lib/glacierguard/detections.db", Host: "ignored"}
	assert.Equal(t, "/var/lib/glacierguard/detections.db", db.GetDSN())
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_CONFIG_VAR", "")
	assert.Equal(t, "default", getEnv("TEST_CONFIG_VAR", "default"))

	t.Setenv("TEST_CONFIG_VAR", "custom")
	assert.Equal(t, "custom", getEnv("TEST_CONFIG_VAR", "default"))
}

func TestGetIntEnv(t *testing.T) {
	t.Run("fallback when unset", func(t *testing.T) {
		t.Setenv("TEST_INT_VAR", "")
		got, err := getIntEnv("TEST_INT_VAR", 8080)
		require.NoError(t, err)
		assert.Equal(t, 8080, got)
	})

	t.Run("parses valid int", func(t *testing.T) {
		t.Setenv("TEST_INT_VAR", "9090")
		got, err := getIntEnv("TEST_INT_VAR", 8080)
		require.NoError(t, err)
		assert.Equal(t, 9090, got)
	})

	t.Run("error on invalid int", func(t *testing.T) {
		t.Setenv("TEST_INT_VAR", "not_int")
		_, err := getIntEnv("TEST_INT_VAR", 8080)
		assert.Error(t, err)
	})
}

func TestGetBoolEnv(t *testing.T) {
	t.Setenv("TEST_BOOL_VAR", "")
	got, err := getBoolEnv("TEST_BOOL_VAR", true)
	require.NoError(t, err)
	assert.True(t, got)

	t.Setenv("TEST_BOOL_VAR", "false")
	got, err = getBoolEnv("TEST_BOOL_VAR", true)
	require.NoError(t, err)
	assert.False(t, got)

	t.Setenv("TEST_BOOL_VAR", "maybe")
	_, err = getBoolEnv("TEST_BOOL_VAR", true)
	assert.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 24, cfg.JWT.ExpiryHours)
	assert.False(t, cfg.Auth.RequireForWrites)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "http://localhost:5173", cfg.CORS.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "glacierguard/detections/+", cfg.MQTT.Topic)
}

func TestLoadConfigCustom(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "3000")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("JWT_EXPIRY_HOURS", "48")
	t.Setenv("AUTH_REQUIRE_FOR_WRITES", "true")
	t.Setenv("REDIS_HOST", "cache")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/x.db", cfg.Database.GetDSN())
	assert.Equal(t, 48, cfg.JWT.ExpiryHours)
	assert.True(t, cfg.Auth.RequireForWrites)
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DB_NAME=from_file\nSERVER_PORT=7070\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	// Explicit environment wins over the file.
	t.Setenv("SERVER_PORT", "6060")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "from_file", cfg.Database.Name)
	assert.Equal(t, 6060, cfg.Server.Port)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"SERVER_PORT", "invalid", "SERVER_PORT"},
		{"DB_PORT", "x", "DB_PORT"},
		{"REDIS_DB", "one", "REDIS_DB"},
		{"AUTH_REQUIRE_FOR_WRITES", "sometimes", "AUTH_REQUIRE_FOR_WRITES"},
		{"DB_DRIVER", "oracle", "DB_DRIVER"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}
