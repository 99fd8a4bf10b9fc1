package export

import (
	"context"

	"go.uber.org/fx"

	coreconfig "github.com/tidemill/dedupe/pkg/dedupe/core/config"
)

// NewReportExporterProvider builds the exporter from the export configuration.
// A Cloud Storage uploader is attached only when a bucket is configured, and
// its client is closed with the application lifecycle.
func NewReportExporterProvider(lc fx.Lifecycle, cfg *coreconfig.Config) (*ReportExporter, error) {
	exportCfg := cfg.Dedupe.Export

	var uploader Uploader
	if exportCfg.GCSBucket != "" {
		gcs, err := NewGCSUploader(context.Background(), exportCfg.GCSBucket, exportCfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return gcs.Close()
			},
		})
		uploader = gcs
	}

	return NewReportExporter(exportCfg, uploader), nil
}

// Module exports the report exporter for dependency injection.
var Module = fx.Options(
	fx.Provide(NewReportExporterProvider),
)
