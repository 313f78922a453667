package config

import (
	"fmt"
	"os"
	"strings"

	httpapi "github.com/pharmadash/pharmadash-manager/internal/api/http"
	"github.com/pharmadash/pharmadash-manager/internal/lifecycle"
	"github.com/pharmadash/pharmadash-manager/internal/store"
	"github.com/pharmadash/pharmadash-manager/log"
	"github.com/spf13/viper"
)

// Config represents the global configuration for the service.
type Config struct {
	DB          store.Config     `mapstructure:"mysql"`
	Logger      log.Config       `mapstructure:"logger"`
	HTTP        httpapi.Config   `mapstructure:"http"`
	Coordinator lifecycle.Config `mapstructure:"coordinator"`
}

// LoadConfig loads the configuration from a file and/or environment
// variables. Environment variables take precedence over config file values.
func LoadConfig(cfgFile string) (*Config, error) {
	viper.SetConfigType("toml")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__", "-", "__"))
	bindEnvVars()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %v", err)
			}
		}
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("$HOME/config/pharmadash-manager")
		viper.AddConfigPath("/etc/pharmadash-manager")
		_ = viper.ReadInConfig()
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config into struct: %v", err)
	}

	// Construct the MySQL DSN from individual env vars if it is not set
	if config.DB.DSN == "" {
		host := os.Getenv("MYSQL_HOST")
		port := os.Getenv("MYSQL_PORT")
		user := os.Getenv("MYSQL_USER")
		password := os.Getenv("MYSQL_PASSWORD")
		database := os.Getenv("MYSQL_DATABASE")
		if host != "" && user != "" && password != "" && database != "" {
			if port == "" {
				port = "3306"
			}
			config.DB.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8&parseTime=true",
				user, password, host, port, database)
		}
	}

	return &config, nil
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars() {
	viper.BindEnv("mysql.dsn", "MYSQL_DSN")
	viper.BindEnv("mysql.automigrate", "MYSQL_AUTOMIGRATE")
	viper.BindEnv("mysql.max_open_connections", "MYSQL_MAX_OPEN_CONNECTIONS")
	viper.BindEnv("mysql.max_idle_connections", "MYSQL_MAX_IDLE_CONNECTIONS")

	viper.BindEnv("logger.level", "LOG_LEVEL")
	viper.BindEnv("logger.add_source", "LOG_ADD_SOURCE")

	viper.BindEnv("http.port", "HTTP_PORT")
	viper.BindEnv("http.address", "HTTP_ADDRESS")
	viper.BindEnv("http.allowed_origins", "HTTP_ALLOWED_ORIGINS")
	viper.BindEnv("http.refresh_per_minute", "HTTP_REFRESH_PER_MINUTE")

	viper.BindEnv("coordinator.settle_delay", "COORDINATOR_SETTLE_DELAY")
}
