package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/tabwarden/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var validateDump bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the TabWarden configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump the effective configuration")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 60))
		fmt.Fprintln(os.Stdout, "EFFECTIVE CONFIGURATION")
		fmt.Fprintln(os.Stdout, strings.Repeat("=", 60))
		dumpConfig(cfg)
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	validKeys := getValidKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}

	return unknown, nil
}

// getValidKeys returns a set of all valid configuration keys
func getValidKeys() map[string]bool {
	return map[string]bool{
		// Bridge
		"bridge.bind_address":       true,
		"bridge.port":               true,
		"bridge.heartbeat_interval": true,

		// Metrics
		"metrics.enabled":      true,
		"metrics.bind_address": true,
		"metrics.port":         true,

		// Storage
		"storage.type":                 true,
		"storage.path":                 true,
		"storage.redis.host":           true,
		"storage.redis.port":           true,
		"storage.redis.password":       true,
		"storage.redis.db":             true,
		"storage.redis.pool_size":      true,
		"storage.redis.min_idle_conns": true,
		"storage.redis.dial_timeout":   true,
		"storage.redis.read_timeout":   true,
		"storage.redis.write_timeout":  true,

		// Logging
		"logging.level":  true,
		"logging.format": true,

		// Tracking
		"tracking.tick_interval":     true,
		"tracking.flush_interval":    true,
		"tracking.periodic_flush":    true,
		"tracking.gate":              true,
		"tracking.domain_cache_size": true,

		// Notify
		"notify.endpoint":    true,
		"notify.service_id":  true,
		"notify.template_id": true,
		"notify.public_key":  true,
		"notify.timeout":     true,
	}
}

// dumpConfig prints the effective configuration, section by section
func dumpConfig(cfg *config.Config) {
	cyan := color.New(color.FgCyan, color.Bold)

	cyan.Println("\n[bridge]")
	fmt.Printf("  bind_address = %s\n", cfg.Bridge.BindAddress)
	fmt.Printf("  port = %d\n", cfg.Bridge.Port)
	fmt.Printf("  heartbeat_interval = %s\n", cfg.Bridge.HeartbeatInterval)

	cyan.Println("\n[metrics]")
	fmt.Printf("  enabled = %v\n", cfg.Metrics.Enabled)
	fmt.Printf("  bind_address = %s\n", cfg.Metrics.BindAddress)
	fmt.Printf("  port = %d\n", cfg.Metrics.Port)

	cyan.Println("\n[storage]")
	fmt.Printf("  type = %s\n", cfg.Storage.Type)
	fmt.Printf("  path = %s\n", cfg.Storage.Path)
	if cfg.Storage.Type == "redis" {
		cyan.Println("  [storage.redis]")
		fmt.Printf("    host = %s\n", cfg.Storage.Redis.Host)
		fmt.Printf("    port = %d\n", cfg.Storage.Redis.Port)
		fmt.Printf("    password = %s\n", redactSecret(cfg.Storage.Redis.Password))
		fmt.Printf("    db = %d\n", cfg.Storage.Redis.DB)
		fmt.Printf("    pool_size = %d\n", cfg.Storage.Redis.PoolSize)
		fmt.Printf("    min_idle_conns = %d\n", cfg.Storage.Redis.MinIdleConns)
		fmt.Printf("    dial_timeout = %s\n", cfg.Storage.Redis.DialTimeout)
		fmt.Printf("    read_timeout = %s\n", cfg.Storage.Redis.ReadTimeout)
		fmt.Printf("    write_timeout = %s\n", cfg.Storage.Redis.WriteTimeout)
	}

	cyan.Println("\n[logging]")
	fmt.Printf("  level = %s\n", cfg.Logging.Level)
	fmt.Printf("  format = %s\n", cfg.Logging.Format)

	cyan.Println("\n[tracking]")
	fmt.Printf("  tick_interval = %s\n", cfg.Tracking.TickInterval)
	fmt.Printf("  flush_interval = %s\n", cfg.Tracking.FlushInterval)
	fmt.Printf("  periodic_flush = %s\n", cfg.Tracking.PeriodicFlush)
	fmt.Printf("  gate = %s\n", cfg.Tracking.Gate)
	fmt.Printf("  domain_cache_size = %d\n", cfg.Tracking.DomainCacheSize)

	cyan.Println("\n[notify]")
	fmt.Printf("  endpoint = %s\n", cfg.Notify.Endpoint)
	fmt.Printf("  service_id = %s\n", cfg.Notify.ServiceID)
	fmt.Printf("  template_id = %s\n", cfg.Notify.TemplateID)
	fmt.Printf("  public_key = %s\n", redactSecret(cfg.Notify.PublicKey))
	fmt.Printf("  timeout = %s\n", cfg.Notify.Timeout)

	fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 60))
}

// redactSecret redacts a secret if not empty
func redactSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***REDACTED***"
}
