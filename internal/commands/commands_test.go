package commands

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"evalgo.org/deployhub/internal/config"
)

func TestRedact(t *testing.T) {
	assert.Equal(t, "", redact(""))
	assert.Equal(t, "********", redact("s3cret"))
}

func TestApplyFlagOverrides(t *testing.T) {
	defer viper.Reset()

	c := &config.Config{Logging: config.LoggingConfig{Level: "info", Format: "json"}}
	applyFlagOverrides(c)
	assert.Equal(t, "info", c.Logging.Level)

	viper.Set("logging.level", "debug")
	applyFlagOverrides(c)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, "json", c.Logging.Format)
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"center", "agent", "token", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
