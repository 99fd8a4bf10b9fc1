package config

import (
	"github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
)

// EmbeddedConfig is a type for embedding configuration file content directly into the binary.
type EmbeddedConfig []byte

// LogLevel is a type for specifying log levels in configuration.
type LogLevel string

// Constants defining available log levels.
const (
	DebugLevel LogLevel = "DEBUG"
	InfoLevel  LogLevel = "INFO"
	WarnLevel  LogLevel = "WARN"
	ErrorLevel LogLevel = "ERROR"
)

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (e.g., "DEBUG", "INFO", "WARN", "ERROR").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the system timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string `yaml:"timezone"`
	// Logging contains logging settings.
	Logging LoggingConfig `yaml:"logging"`
}

// InfrastructureConfig holds settings for infrastructure components.
type InfrastructureConfig struct {
	// RunRepositoryDBRef is the logical name of the database connection used by the run repository.
	RunRepositoryDBRef string `yaml:"run_repository_db_ref"`
	// AutoMigrate applies pending schema migrations to the run repository on startup.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// RecordRelationshipConfig names one child relationship of a record object.
type RecordRelationshipConfig struct {
	// ChildObjectType is the child object type holding the reference.
	ChildObjectType string `yaml:"child_object_type"`
	// RelationshipField is the foreign-key column on the child table.
	RelationshipField string `yaml:"relationship_field"`
}

// RecordObjectConfig maps one object type onto its backing table.
type RecordObjectConfig struct {
	// Table is the database table holding the object's records.
	Table string `yaml:"table"`
	// IDColumn is the primary-key column. Defaults to "id".
	IDColumn string `yaml:"id_column"`
	// CreatedAtColumn is the creation-timestamp column. Defaults to "created_at".
	CreatedAtColumn string `yaml:"created_at_column"`
	// FieldColumns maps record field identifiers to table columns.
	FieldColumns map[string]string `yaml:"field_columns"`
	// Relationships lists the child relationships reparented during merge.
	Relationships []RecordRelationshipConfig `yaml:"relationships"`
}

// RecordStoreConfig holds the SQL record store settings.
type RecordStoreConfig struct {
	// DBRef is the logical name of the database connection holding the records.
	DBRef string `yaml:"db_ref"`
	// ReadOnly denies merge operations against the store. Scans still work,
	// so read-only deployments can run detection with dry_run.
	ReadOnly bool `yaml:"read_only"`
	// Objects maps object type names to their table mappings.
	Objects map[string]RecordObjectConfig `yaml:"objects"`
}

// MetricsConfig holds settings for the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled toggles metrics collection.
	Enabled bool `yaml:"enabled"`
	// Namespace is the Prometheus namespace prepended to every metric name.
	Namespace string `yaml:"namespace"`
	// ListenAddr is the address the /metrics HTTP endpoint binds to (empty disables the endpoint).
	ListenAddr string `yaml:"listen_addr"`
}

// TracingConfig holds settings for OTLP trace export.
type TracingConfig struct {
	// Enabled toggles span export. When false a no-op tracer is used.
	Enabled bool `yaml:"enabled"`
	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `yaml:"endpoint"`
	// Protocol selects the OTLP transport, "grpc" or "http".
	Protocol string `yaml:"protocol"`
	// ServiceName is the service.name resource attribute attached to exported spans.
	ServiceName string `yaml:"service_name"`
	// SampleRatio is the trace sampling ratio in [0, 1].
	SampleRatio float64 `yaml:"sample_ratio"`
}

// ExportConfig holds settings for the group detail report export.
type ExportConfig struct {
	// Enabled toggles report generation after a run completes.
	Enabled bool `yaml:"enabled"`
	// OutputDir is the local directory Parquet reports are written to.
	OutputDir string `yaml:"output_dir"`
	// Compression is the Parquet compression codec ("snappy", "gzip" or "none").
	Compression string `yaml:"compression"`
	// GCSBucket, when set, uploads the generated report to this Cloud Storage bucket.
	GCSBucket string `yaml:"gcs_bucket"`
	// GCSPrefix is the object name prefix used for uploaded reports.
	GCSPrefix string `yaml:"gcs_prefix"`
	// CredentialsFile is the path to a service account key file for Cloud Storage.
	CredentialsFile string `yaml:"credentials_file"`
}

// DedupeConfig holds all settings under the "dedupe" top-level key.
type DedupeConfig struct {
	// Run is the default run configuration applied when no named configuration is requested.
	Run model.RunConfiguration `yaml:"run"`
	// Configurations maps configuration names to reusable run configurations.
	Configurations map[string]model.RunConfiguration `yaml:"configurations"`
	// System contains system-wide settings.
	System SystemConfig `yaml:"system"`
	// Infrastructure contains infrastructure component settings.
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `yaml:"metrics"`
	// Tracing contains OTLP trace export settings.
	Tracing TracingConfig `yaml:"tracing"`
	// Export contains report export settings.
	Export ExportConfig `yaml:"export"`
	// RecordStore contains the SQL record store table mappings.
	RecordStore RecordStoreConfig `yaml:"record_store"`
	// AdaptorConfigs holds raw per-connection database settings keyed by logical name.
	// Entries are decoded into adapter-specific config structs with mapstructure.
	AdaptorConfigs map[string]interface{} `yaml:"database"`
}

// Config is the root configuration structure for the application.
type Config struct {
	// Dedupe contains all application settings.
	Dedupe DedupeConfig `yaml:"dedupe"`
	// EmbeddedConfig holds the raw bytes the configuration was loaded from.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
//
// Returns:
//
//	A pointer to a new Config instance initialized with default settings.
func NewConfig() *Config {
	cfg := &Config{
		Dedupe: DedupeConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Run: model.RunConfiguration{
				MasterStrategy: model.StrategyOldestCreated,
				PartitionSize:  model.DefaultPartitionSize,
				GridSize:       1,
			},
			Infrastructure: InfrastructureConfig{
				RunRepositoryDBRef: "metadata",
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "dedupe",
			},
			Tracing: TracingConfig{
				Protocol:    "grpc",
				ServiceName: "dedupe",
				SampleRatio: 1.0,
			},
			Export: ExportConfig{
				OutputDir:   "./reports",
				Compression: "snappy",
			},
		},
	}

	// Initialize AdaptorConfigs as an empty map, to be populated by YAML or by mergeConfig.
	cfg.Dedupe.AdaptorConfigs = map[string]interface{}{}
	return cfg
}
