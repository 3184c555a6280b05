package cache

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-transfer-api/pkg/config"
)

func TestNewRedisPings(t *testing.T) {
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)

	client, err := NewRedis(config.RedisConfig{Host: srv.Host(), Port: port})
	require.NoError(t, err)
	defer client.Close()
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ttr:vacancies:open", Key("vacancies", " ", "open"))
	assert.Equal(t, "ttr", Key())
}
