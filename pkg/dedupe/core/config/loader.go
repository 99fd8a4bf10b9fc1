package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"

	"go.uber.org/fx"
)

// Package config provides utilities for loading and managing application configuration
// from YAML files and environment variables.

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig      // EmbeddedConfig contains the raw bytes of the configuration file.
	Expander       EnvironmentExpander // Expander resolves ${VAR} placeholders in the raw configuration.
	EnvFilePath    string              `name:"envFilePath" optional:"true"` // EnvFilePath is the path to the .env file, if any.
}

// loadConfig loads configuration from the embedded file and environment variables.
// This function is intended to be called only once during application startup.
//
// Parameters:
//   envFilePath: The path to the .env file.
//   embeddedConfig: The embedded configuration bytes.
//   expander: The placeholder expander applied before YAML parsing.
// Returns:
//   A pointer to the loaded Config and an error if loading fails.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	cfg := NewConfig()
	cfg.EmbeddedConfig = embeddedConfig

	// 1. Expand ${VAR} placeholders in the raw YAML so secrets can live in the environment.
	raw := []byte(embeddedConfig)
	if expander != nil {
		expanded, err := expander.Expand(raw)
		if err != nil {
			return nil, exception.NewDedupError(moduleName, "failed to expand environment placeholders in config", err, false)
		}
		raw = expanded
	}

	// 2. Parse the YAML into a temporary Config so values land in their declared types.
	var yamlConfig Config
	if err := yaml.Unmarshal(raw, &yamlConfig); err != nil {
		return nil, exception.NewDedupError(moduleName, "failed to unmarshal embedded config", err, false)
	}

	// 3. Merge YAML configuration into the default configuration.
	mergeConfig(cfg, &yamlConfig)

	// 4. Override with environment variables.
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewDedupError(moduleName, "failed to load config from environment variables", err, false)
	}
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads and provides *Config.
// It initializes the application configuration by loading defaults,
// merging from embedded YAML, and overriding with environment variables.
// It also sets the global logger level.
//
// Parameters:
//   params: ConfigParams containing dependencies like embedded config and env file path.
// Returns:
//   A pointer to the initialized Config and an error if configuration loading fails.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, params.Expander)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Dedupe.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Dedupe.System.Logging.Level)

	return cfg, nil
}

// LoadConfig loads configuration from the embedded configuration bytes and environment
// variables without going through Fx. It is expected to be called only once during startup.
//
// Parameters:
//   envFilePath: The path to the .env file.
//   embeddedConfig: The embedded configuration bytes.
// Returns:
//   A pointer to the loaded Config and an error if loading fails.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, NewOsEnvironmentExpander())
}

// mergeConfig performs a deep merge from sourceConfig into destConfig.
// Values in sourceConfig will overwrite corresponding values in destConfig
// if they are not zero/empty values for their type.
//
// Parameters:
//   destConfig: The destination Config to merge into.
//   sourceConfig: The source Config to merge from.
func mergeConfig(destConfig, sourceConfig *Config) {
	mergeDedupeConfig(&destConfig.Dedupe, &sourceConfig.Dedupe)
}

// mergeDedupeConfig merges source into dest.
//
// Parameters:
//   dest: The destination DedupeConfig to merge into.
//   source: The source DedupeConfig to merge from.
func mergeDedupeConfig(dest, source *DedupeConfig) {
	mergeRunConfiguration(&dest.Run, &source.Run)
	mergeSystemConfig(&dest.System, &source.System)

	if source.Infrastructure.RunRepositoryDBRef != "" {
		dest.Infrastructure.RunRepositoryDBRef = source.Infrastructure.RunRepositoryDBRef
	}
	if source.Infrastructure.AutoMigrate {
		dest.Infrastructure.AutoMigrate = true
	}

	mergeMetricsConfig(&dest.Metrics, &source.Metrics)
	mergeTracingConfig(&dest.Tracing, &source.Tracing)
	mergeExportConfig(&dest.Export, &source.Export)

	if source.RecordStore.DBRef != "" {
		dest.RecordStore.DBRef = source.RecordStore.DBRef
	}
	if source.RecordStore.ReadOnly {
		dest.RecordStore.ReadOnly = true
	}
	if source.RecordStore.Objects != nil {
		if dest.RecordStore.Objects == nil {
			dest.RecordStore.Objects = make(map[string]RecordObjectConfig)
		}
		for name, obj := range source.RecordStore.Objects {
			dest.RecordStore.Objects[name] = obj
		}
	}

	if source.Configurations != nil {
		if dest.Configurations == nil {
			dest.Configurations = make(map[string]model.RunConfiguration)
		}
		for name, rc := range source.Configurations {
			dest.Configurations[name] = rc
		}
	}

	// Merge AdaptorConfigs (this is the critical part for database configs).
	if source.AdaptorConfigs != nil {
		if dest.AdaptorConfigs == nil {
			dest.AdaptorConfigs = make(map[string]interface{})
		}
		for key, value := range source.AdaptorConfigs {
			dest.AdaptorConfigs[key] = value
		}
	}
}

// mergeRunConfiguration merges source into dest.
//
// Parameters:
//   dest: The destination run configuration to merge into.
//   source: The source run configuration to merge from.
func mergeRunConfiguration(dest, source *model.RunConfiguration) {
	if source.ObjectType != "" {
		dest.ObjectType = source.ObjectType
	}
	if source.MatchFields != nil {
		dest.MatchFields = source.MatchFields
	}
	if source.MasterStrategy != "" {
		dest.MasterStrategy = source.MasterStrategy
	}
	if source.PartitionSize != 0 {
		dest.PartitionSize = source.PartitionSize
	}
	if source.GridSize != 0 {
		dest.GridSize = source.GridSize
	}
	if source.DryRun {
		dest.DryRun = true
	}
	if source.ConfigurationName != "" {
		dest.ConfigurationName = source.ConfigurationName
	}
}

// mergeSystemConfig merges source into dest.
//
// Parameters:
//   dest: The destination SystemConfig to merge into.
//   source: The source SystemConfig to merge from.
func mergeSystemConfig(dest, source *SystemConfig) {
	if source.Timezone != "" {
		dest.Timezone = source.Timezone
	}
	if source.Logging.Level != "" {
		dest.Logging.Level = source.Logging.Level
	}
}

// mergeMetricsConfig merges source into dest.
func mergeMetricsConfig(dest, source *MetricsConfig) {
	if source.Namespace != "" {
		dest.Namespace = source.Namespace
	}
	if source.ListenAddr != "" {
		dest.ListenAddr = source.ListenAddr
	}
	if !source.Enabled && (source.Namespace != "" || source.ListenAddr != "") {
		dest.Enabled = false
	}
	if source.Enabled {
		dest.Enabled = true
	}
}

// mergeTracingConfig merges source into dest.
func mergeTracingConfig(dest, source *TracingConfig) {
	if source.Enabled {
		dest.Enabled = true
	}
	if source.Endpoint != "" {
		dest.Endpoint = source.Endpoint
	}
	if source.Protocol != "" {
		dest.Protocol = source.Protocol
	}
	if source.ServiceName != "" {
		dest.ServiceName = source.ServiceName
	}
	if source.SampleRatio != 0 {
		dest.SampleRatio = source.SampleRatio
	}
}

// mergeExportConfig merges source into dest.
func mergeExportConfig(dest, source *ExportConfig) {
	if source.Enabled {
		dest.Enabled = true
	}
	if source.OutputDir != "" {
		dest.OutputDir = source.OutputDir
	}
	if source.Compression != "" {
		dest.Compression = source.Compression
	}
	if source.GCSBucket != "" {
		dest.GCSBucket = source.GCSBucket
	}
	if source.GCSPrefix != "" {
		dest.GCSPrefix = source.GCSPrefix
	}
	if source.CredentialsFile != "" {
		dest.CredentialsFile = source.CredentialsFile
	}
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name.
//
// Parameters:
//   val: The reflect.Value of the struct to populate.
//   prefix: The prefix for environment variable names (e.g., "DEDUPE_SYSTEM_").
// Returns: An error if any field cannot be set.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		yamlTag = strings.SplitN(yamlTag, ",", 2)[0]
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		// Maps and slices are only configurable through YAML.
		if field.Kind() == reflect.Map || field.Kind() == reflect.Slice {
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}

		if err := setField(field, envValue); err != nil {
			return exception.NewDedupError(moduleName,
				"failed to set field '"+fieldType.Name+"' from env var '"+envVarName+"'", err, false)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
// It handles string, int, float, and bool types.
//
// Parameters:
//   field: The reflect.Value of the field to set.
//   value: The string value to convert and set.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
