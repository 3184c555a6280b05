package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, NotificationDriverLog, cfg.Notification.Driver)
	assert.Equal(t, 3*time.Second, cfg.Ledger.CallTimeout)
	assert.Equal(t, uint32(5), cfg.Ledger.BreakerFailures)
	assert.Equal(t, "*/5 * * * *", cfg.Reconciler.Schedule)
	assert.Equal(t, 72*time.Hour, cfg.Notification.DedupeTTL)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORAGE_DRIVER", "MEMORY")
	v.Set("LEDGER_BASE_URL", "http://ledger.local/")
	v.Set("LEDGER_CALL_TIMEOUT", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg := fromViper(v)
	assert.Equal(t, StorageDriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "http://ledger.local", cfg.Ledger.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Ledger.CallTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}
