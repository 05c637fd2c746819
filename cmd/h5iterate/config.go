package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/scigolib/h5iterate"
)

const (
	configFileName = ".h5iterate"
	configFileType = "yaml"
	envPrefix      = "H5ITERATE"

	// Config keys. Flags of the same name override them.
	cfgKeyFile     = "file"
	cfgKeyGroup    = "group"
	cfgKeyOrder    = "order"
	cfgKeyOutput   = "output"
	cfgKeyVerbose  = "verbose"
	cfgKeyLogLevel = "log-level"

	// defaultFile is the file the demonstration program lists.
	defaultFile = "groups/h5ex_g_iterate.h5"
)

// Output formats.
const (
	outputText = "text"
	outputJSON = "json"
)

// listConfig is the resolved configuration of a listing run.
type listConfig struct {
	File    string
	Group   string
	Order   h5iterate.IndexType
	Output  string
	Verbose bool
}

// newViper returns a Viper with defaults and environment binding.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(cfgKeyFile, defaultFile)
	v.SetDefault(cfgKeyGroup, "/")
	v.SetDefault(cfgKeyOrder, h5iterate.IndexName.String())
	v.SetDefault(cfgKeyOutput, outputText)
	v.SetDefault(cfgKeyLogLevel, "info")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// readConfigFile loads configFile, or .h5iterate.yaml from the working
// directory when configFile is empty. A missing default file is not an
// error.
func readConfigFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// resolveListConfig builds the listing configuration. A positional file
// argument overrides the configured file.
func resolveListConfig(v *viper.Viper, args []string) (listConfig, error) {
	cfg := listConfig{
		File:    v.GetString(cfgKeyFile),
		Group:   v.GetString(cfgKeyGroup),
		Output:  strings.ToLower(v.GetString(cfgKeyOutput)),
		Verbose: v.GetBool(cfgKeyVerbose),
	}
	if len(args) > 0 {
		cfg.File = args[0]
	}
	if cfg.Group == "" {
		cfg.Group = "/"
	}

	order, err := h5iterate.ParseIndexType(v.GetString(cfgKeyOrder))
	if err != nil {
		return listConfig{}, err
	}
	cfg.Order = order

	switch cfg.Output {
	case outputText, outputJSON:
	default:
		return listConfig{}, fmt.Errorf("unknown output format %q (want text or json)", cfg.Output)
	}

	return cfg, nil
}
