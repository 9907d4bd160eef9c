// Package config initialises the process-wide Viper instance shared by the
// CLI commands: .env loading, search paths, environment binding and defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	internalconfig "github.com/JakeFAU/hansard-crawler/internal/config"
)

// InitConfig prepares the global Viper instance. An explicit cfgFile must
// exist; otherwise config.yaml is searched for in the working directory,
// /etc/hansard and $HOME/.hansard, and its absence is not an error.
func InitConfig(cfgFile string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env file", zap.Error(err))
	}

	internalconfig.SetDefaults(viper.GetViper())

	viper.SetEnvPrefix(internalconfig.EnvPrefix) // e.g. HANSARD_PROCESSING_WORKERS=8
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		logger.Info("using config file", zap.String("path", viper.ConfigFileUsed()))
		return nil
	}

	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/hansard/")
	viper.AddConfigPath("$HOME/.hansard")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logger.Debug("no config file found; using defaults and environment")
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	logger.Info("using config file", zap.String("path", viper.ConfigFileUsed()))
	return nil
}
