package util

import (
	"github.com/spf13/pflag"

	"github.com/prospector-bot/prospector/pkg/config"
	"github.com/prospector-bot/prospector/pkg/config/types"
)

var configFile string

// AddConfigFlag registers the persistent --config flag on the root command's
// flag set.
func AddConfigFlag(flags *pflag.FlagSet) {
	flags.StringVar(&configFile, "config", "",
		`Path to a config file. Defaults and PROSPECTOR_* environment variables apply either way.`)
}

// LoadConfig resolves the agent configuration for the current invocation.
func LoadConfig() (types.ProspectorConfig, error) {
	var opts []config.Option
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	return config.Load(opts...)
}
