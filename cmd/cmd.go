package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	clearData  bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "team-collab",
	Short: "Team Collaboration",
	Long:  `Task management for teams with role based access and real-time notifications.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// fileDefaults fill the tunables a config.yml may leave out.
var fileDefaults = map[string]any{
	"http_server.read_header_timeout":   "5s",
	"http_server.read_timeout":          "15s",
	"http_server.idle_timeout":          "60s",
	"http_server.write_timeout":         "15s",
	"broker.max_idle":                   8,
	"broker.max_active":                 64,
	"broker.idle_timeout":               "240s",
	"broker.connect_timeout":            "5s",
	"notification.max_workers":          8,
	"notification.job_queue_size":       1024,
	"notification.session_buffer_size":  64,
	"notification.publish_retries":      3,
	"notification.delivery_retries":     3,
	"notification.retry_base_delay":     "50ms",
	"notification.websocket_ping":       "30s",
	"notification.websocket_write_wait": "10s",
	"security.bcrypt_cost":              10,
	"observability.logging.env":         "development",
	"observability.logging.level":       "info",
}

func loadConfig(path string) (*internal.Config, error) {
	var (
		cfg    *internal.Config
		source string
		err    error
	)

	// containers configure through plain environment variables
	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		cfg, source = internal.LoadConfigFromEnv(), "environment"
	} else {
		cfg, err = loadFileConfig(path)
		if err != nil {
			return nil, err
		}
		source = "file"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config from %s: %w", source, err)
	}
	return cfg, nil
}

func loadFileConfig(path string) (*internal.Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range fileDefaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory holding config.yml")
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}
