package cmd

import (
	"testing"
	"time"

	"github.com/open-feature/flagx/core/pkg/cache"
	"github.com/open-feature/flagx/pkg/runtime"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartFlags_BoundToViper(t *testing.T) {
	assert.Equal(t, cache.DefaultTTL, viper.GetDuration(cacheTTLFlagName))
	assert.Equal(t, int32(8080), viper.GetInt32(portFlagName))
	assert.Equal(t, runtime.DefaultReportSchedule, viper.GetString(reportScheduleFlagName))

	require.NoError(t, startCmd.Flags().Set(alertIntervalFlagName, "2m"))
	assert.Equal(t, 2*time.Minute, viper.GetDuration(alertIntervalFlagName))
}

func TestStartFlags_EnvOverride(t *testing.T) {
	t.Setenv("FLAGX_CACHE_SIZE", "42")
	initConfig()

	assert.Equal(t, 42, viper.GetInt(cacheSizeFlagName))
}
