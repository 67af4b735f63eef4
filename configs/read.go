package configs

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Path resolves the config file location from CLI args: either a positional
// path or a `--config <path>` pair. Falls back to defaultConfigFile.
func Path(args []string, defaultConfigFile string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if args[i] != "--config" {
			return args[i]
		}
	}
	return defaultConfigFile
}

func ReadTo(configFile string, config interface{}) error {
	logrus.Infof("Reading config from %s", configFile)

	viper.SetConfigFile(configFile)
	viper.AddConfigPath(".")
	viper.SetConfigType("json")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("can't read config file '%s': %w", configFile, err)
	}

	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("can't parse config file '%s': %w", configFile, err)
	}
	return nil
}
