package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing mediaforge configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  mediaforge config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, .mediaforge.yaml, /etc/mediaforge/config.yaml)
  - Environment variables (MEDIAFORGE_SERVER_PORT, MEDIAFORGE_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the MEDIAFORGE_ prefix and underscores for nesting.
Example: server.port -> MEDIAFORGE_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Get yaml tag or use lowercase field name
		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Tag.Get("yaml")
		}
		if key == "" {
			key = fieldType.Name
		}

		// Handle different types
		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case config.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	// Build the default configuration without validating it: the dump must
	// work before a secret key is configured.
	v := viper.New()
	config.SetDefaults(v)

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling defaults: %w", err)
	}

	// Convert to map with human-readable values
	cfgMap := toMap(&cfg)

	// Marshal to YAML
	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Print header with documentation
	fmt.Println("# mediaforge Configuration File")
	fmt.Println("# =============================")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d")
	fmt.Println("# Size format: 5MB, 1GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   MEDIAFORGE_SERVER_HOST, MEDIAFORGE_SERVER_PORT")
	fmt.Println("#   MEDIAFORGE_DATABASE_DRIVER, MEDIAFORGE_DATABASE_DSN")
	fmt.Println("#   MEDIAFORGE_STORAGE_WORKSPACE_ROOT, MEDIAFORGE_STORAGE_MAX_UPLOAD_SIZE")
	fmt.Println("#   MEDIAFORGE_LOGGING_LEVEL, MEDIAFORGE_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("# The bare names SECRET_KEY, ALGORITHM, ACCESS_TOKEN_EXPIRE_MINUTES,")
	fmt.Println("# CORS_ORIGINS, MAX_UPLOAD_SIZE and")
	fmt.Println("# ENABLE_HARDWARE_ACCELERATION_DETECTION are also honoured.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
