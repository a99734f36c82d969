package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/structs"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/prospector-bot/prospector/pkg/config/types"
)

const (
	environmentVariablePrefix = "PROSPECTOR"
	inferConfigTypes          = true
)

var (
	environmentVariableReplace = strings.NewReplacer(".", "_")
	// DecoderHook parses text-unmarshallable config values (durations, byte
	// sizes, agent types) from their string forms.
	DecoderHook = viper.DecodeHook(mapstructure.TextUnmarshallerHookFunc())
)

type Params struct {
	ConfigFile    string
	DefaultConfig types.ProspectorConfig
}

type Option func(p *Params)

func WithDefaultConfig(cfg types.ProspectorConfig) Option {
	return func(p *Params) {
		p.DefaultConfig = cfg
	}
}

func WithConfigFile(path string) Option {
	return func(p *Params) {
		p.ConfigFile = path
	}
}

// Load resolves the agent configuration from defaults, an optional config
// file, and PROSPECTOR_* environment variables, in increasing precedence.
func Load(opts ...Option) (types.ProspectorConfig, error) {
	params := &Params{
		DefaultConfig: types.Default(),
	}
	for _, opt := range opts {
		opt(params)
	}

	viper.SetEnvPrefix(environmentVariablePrefix)
	viper.SetTypeByDefaultValue(inferConfigTypes)
	viper.SetEnvKeyReplacer(environmentVariableReplace)
	SetDefault(params.DefaultConfig)

	if params.ConfigFile != "" {
		viper.SetConfigFile(params.ConfigFile)
		if err := viper.ReadInConfig(); err != nil {
			return types.ProspectorConfig{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()

	var out types.ProspectorConfig
	if err := viper.Unmarshal(&out, DecoderHook); err != nil {
		return types.ProspectorConfig{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	return out, nil
}

// SetDefault gives viper a default for every config key, flattening the
// nested config struct into the dotted key space.
func SetDefault(cfg types.ProspectorConfig) {
	flat := map[string]interface{}{}
	flatten("", structs.Map(cfg), flat)
	for key, value := range flat {
		viper.SetDefault(key, value)
	}
}

func flatten(prefix string, in map[string]interface{}, out map[string]interface{}) {
	for k, v := range in {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := v.(map[string]interface{}); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// Reset clears all configuration, useful for testing.
func Reset() {
	viper.Reset()
}

// Getenv wraps os.Getenv and retrieves the value of the environment variable
// named by the config key. It returns the value, which will be empty if the
// variable is not present.
func Getenv(key string) string {
	return os.Getenv(KeyAsEnvVar(key))
}

// KeyAsEnvVar returns the environment variable corresponding to a config key
func KeyAsEnvVar(key string) string {
	return strings.ToUpper(
		fmt.Sprintf("%s_%s", environmentVariablePrefix, environmentVariableReplace.Replace(key)),
	)
}
