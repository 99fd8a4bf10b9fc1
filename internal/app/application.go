// Package app wires the dedupe engine into a runnable Fx application. It
// assembles configuration, database providers, the run engine, and the
// report exporter, then executes one dedup run and shuts down.
package app

import (
	"context"
	"os"

	"go.uber.org/fx"

	gormadapter "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/gorm"
	config "github.com/tidemill/dedupe/pkg/dedupe/core/config"
	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/accumulator"
	"github.com/tidemill/dedupe/pkg/dedupe/engine/run"
	"github.com/tidemill/dedupe/pkg/dedupe/export"
	inframetrics "github.com/tidemill/dedupe/pkg/dedupe/infrastructure/metrics"
	"github.com/tidemill/dedupe/pkg/dedupe/infrastructure/recordstore"
	sqlrepo "github.com/tidemill/dedupe/pkg/dedupe/infrastructure/repository/sql"
	logginglistener "github.com/tidemill/dedupe/pkg/dedupe/listener/logging"
	"github.com/tidemill/dedupe/pkg/dedupe/migration"
	"github.com/tidemill/dedupe/pkg/dedupe/normalize"
	"github.com/tidemill/dedupe/pkg/dedupe/query"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

// RunConfigurationEnv selects a named configuration for the run. When unset,
// the dedupe.run block of the configuration file is used directly.
const RunConfigurationEnv = "RUN_CONFIGURATION"

// RunApplication sets up and runs the dedupe application using uber-fx.
func RunApplication(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig, dbProviderOptions []fx.Option) {
	app := fx.New(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
			fx.Annotate(
				appCtx,
				fx.As(new(context.Context)),
				fx.ResultTags(`name:"appCtx"`),
			),
		),

		fx.Options(dbProviderOptions...),
		logger.Module,
		config.Module,
		gormadapter.Module,

		normalize.Module,
		accumulator.Module,
		inframetrics.Module,
		sqlrepo.Module,
		recordstore.Module,
		migration.Module,
		logginglistener.Module,
		run.Module,
		query.Module,
		export.Module,

		fx.Invoke(fx.Annotate(startRunExecution, fx.ParamTags(
			"",              // lc fx.Lifecycle
			"",              // shutdowner fx.Shutdowner
			"",              // runner *run.Runner
			"",              // querySvc *query.Service
			"",              // migrator migration.Migrator
			"",              // exporter *export.ReportExporter
			"",              // cfg *config.Config
			`name:"appCtx"`, // appCtx context.Context
		))),
	)

	app.Run()

	if app.Err() != nil {
		logger.Fatalf("Application run failed: %v", app.Err())
	}
}

// startRunExecution registers the lifecycle hook that kicks off the dedup run
// once the Fx container has started.
func startRunExecution(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	runner *run.Runner,
	querySvc *query.Service,
	migrator migration.Migrator,
	exporter *export.ReportExporter,
	cfg *config.Config,
	appCtx context.Context,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go executeRun(appCtx, shutdowner, runner, querySvc, migrator, exporter, cfg)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Infof("Application stopping.")
			return nil
		},
	})
}

// executeRun performs startup migration, runs the configured dedup run,
// reports the outcome, and requests shutdown.
func executeRun(
	appCtx context.Context,
	shutdowner fx.Shutdowner,
	runner *run.Runner,
	querySvc *query.Service,
	migrator migration.Migrator,
	exporter *export.ReportExporter,
	cfg *config.Config,
) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Panic recovered in run execution: %v", r)
		}
		logger.Infof("Requesting application shutdown after run completion.")
		if err := shutdowner.Shutdown(); err != nil {
			logger.Errorf("Failed to shutdown application: %v", err)
		}
	}()

	if cfg.Dedupe.Infrastructure.AutoMigrate {
		logger.Infof("Applying metadata schema migrations...")
		if err := migrator.Up(appCtx); err != nil {
			logger.Errorf("Migration failed: %v", err)
			return
		}
	}

	var result *model.RunResult
	var err error
	if name := os.Getenv(RunConfigurationEnv); name != "" {
		logger.Infof("Starting dedup run from named configuration '%s'...", name)
		result, err = runner.ExecuteNamed(appCtx, name)
	} else {
		logger.Infof("Starting dedup run for object type '%s'...", cfg.Dedupe.Run.ObjectType)
		runCfg := cfg.Dedupe.Run
		result, err = runner.Execute(appCtx, &runCfg)
	}
	if err != nil {
		logger.Errorf("Dedup run failed: %v", err)
		if result == nil {
			return
		}
	}

	logSummary(result)

	if cfg.Dedupe.Export.Enabled {
		exportReport(appCtx, querySvc, exporter, result)
	}
}

// logSummary reports the terminal state of the run.
func logSummary(result *model.RunResult) {
	logger.Infof("Run %s finished with status %s (dry_run=%t)", result.ID, result.Status, result.IsDryRun)
	logger.Infof("  object type:       %s", result.ObjectType)
	logger.Infof("  records processed: %d", result.RecordsProcessed)
	logger.Infof("  duplicates found:  %d", result.DuplicatesFound)
	logger.Infof("  records merged:    %d", result.RecordsMerged)
	logger.Infof("  processing time:   %dms", result.ProcessingTimeMs)
	if result.ErrorMessage != "" {
		logger.Warnf("  errors: %s", result.ErrorMessage)
	}
}

// exportReport fetches every group detail of the run and hands them to the
// parquet exporter.
func exportReport(ctx context.Context, querySvc *query.Service, exporter *export.ReportExporter, result *model.RunResult) {
	count, err := querySvc.GetGroupCount(ctx, result.ID)
	if err != nil {
		logger.Errorf("Failed to count groups for export: %v", err)
		return
	}

	details := make([]*model.GroupDetail, 0, count)
	const pageSize = 500
	for page := 1; len(details) < count; page++ {
		batch, err := querySvc.GetGroups(ctx, result.ID, pageSize, page)
		if err != nil {
			logger.Errorf("Failed to fetch groups for export: %v", err)
			return
		}
		if len(batch) == 0 {
			break
		}
		details = append(details, batch...)
	}

	path, err := exporter.Export(ctx, result, details)
	if err != nil {
		logger.Errorf("Report export failed: %v", err)
		return
	}
	if path != "" {
		logger.Infof("Group report written to %s", path)
	}
}
