// Package export generates Parquet reports from a finished run's group details.
package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	coreconfig "github.com/tidemill/dedupe/pkg/dedupe/core/config"
	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

// GroupReportRow is the Parquet row schema of the group detail report.
type GroupReportRow struct {
	RunResultID        string  `parquet:"name=run_result_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	GroupKey           string  `parquet:"name=group_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	RecordCount        int32   `parquet:"name=record_count, type=INT32"`
	MatchScore         float64 `parquet:"name=match_score, type=DOUBLE"`
	MasterRecordID     string  `parquet:"name=master_record_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	DuplicateRecordIDs string  `parquet:"name=duplicate_record_ids, type=BYTE_ARRAY, convertedtype=UTF8"`
	ObjectName         string  `parquet:"name=object_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	ErrorMessage       string  `parquet:"name=error_message, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreateTime         int64   `parquet:"name=create_time_ms, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// Uploader copies a generated report to remote storage.
type Uploader interface {
	// Upload writes the report bytes under the given object name.
	Upload(ctx context.Context, objectName string, data *bytes.Buffer) error

	// Close releases the uploader's resources.
	Close() error
}

// ReportExporter writes a run's group details to a local Parquet file and
// optionally uploads it through the configured Uploader.
type ReportExporter struct {
	cfg      coreconfig.ExportConfig
	uploader Uploader
}

// NewReportExporter creates a ReportExporter. uploader may be nil when no
// remote target is configured.
func NewReportExporter(cfg coreconfig.ExportConfig, uploader Uploader) *ReportExporter {
	return &ReportExporter{cfg: cfg, uploader: uploader}
}

// Export writes the report and returns the local file path. Runs with no
// group details produce no file.
func (e *ReportExporter) Export(ctx context.Context, result *model.RunResult, details []*model.GroupDetail) (string, error) {
	const module = "export"
	if len(details) == 0 {
		logger.Infof("Export: run '%s' produced no groups, skipping report generation.", result.ID)
		return "", nil
	}

	codec, err := compressionCodec(e.cfg.Compression)
	if err != nil {
		return "", exception.NewConfigError(module, "invalid compression type '%s'", e.cfg.Compression)
	}

	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(GroupReportRow), int64(len(details)))
	if err != nil {
		return "", exception.NewDedupError(module, "failed to create Parquet writer", err, false)
	}
	pw.CompressionType = codec

	for _, d := range details {
		row := GroupReportRow{
			RunResultID:        d.RunResultID,
			GroupKey:           d.GroupKey,
			RecordCount:        int32(d.RecordCount),
			MatchScore:         d.MatchScore,
			MasterRecordID:     d.MasterRecordID,
			DuplicateRecordIDs: d.DuplicateRecordIDs,
			ObjectName:         d.ObjectName,
			ErrorMessage:       d.ErrorMessage,
			CreateTime:         d.CreateTime.UnixMilli(),
		}
		if err := pw.Write(row); err != nil {
			return "", exception.NewDedupError(module,
				fmt.Sprintf("failed to write group '%s' to Parquet", d.GroupKey), err, false)
		}
	}
	if err := writeStop(pw); err != nil {
		return "", exception.NewDedupError(module, "failed to finalize Parquet file", err, false)
	}

	fileName := fmt.Sprintf("dedupe_report_%s_%s.parquet", result.ID, time.Now().Format("20060102150405"))
	localPath := filepath.Join(e.cfg.OutputDir, fileName)
	if err := os.MkdirAll(e.cfg.OutputDir, 0755); err != nil {
		return "", exception.NewDedupError(module,
			fmt.Sprintf("failed to create output directory '%s'", e.cfg.OutputDir), err, false)
	}
	if err := os.WriteFile(localPath, buf.Bytes(), 0644); err != nil {
		return "", exception.NewDedupError(module,
			fmt.Sprintf("failed to write report file '%s'", localPath), err, false)
	}
	logger.Infof("Export: wrote %d groups to %s (%d bytes).", len(details), localPath, buf.Len())

	var multiErr error
	if e.uploader != nil {
		objectName := fileName
		if e.cfg.GCSPrefix != "" {
			objectName = strings.TrimSuffix(e.cfg.GCSPrefix, "/") + "/" + fileName
		}
		if err := e.uploader.Upload(ctx, objectName, bytes.NewBuffer(buf.Bytes())); err != nil {
			multiErr = multierror.Append(multiErr, exception.NewDedupError(module,
				fmt.Sprintf("failed to upload report '%s'", objectName), err, true))
		} else {
			logger.Infof("Export: uploaded report to '%s'.", objectName)
		}
	}

	return localPath, multiErr
}

// writeStop finalizes the Parquet writer, converting library panics to errors.
func writeStop(pw *writer.ParquetWriter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
		}
	}()
	return pw.WriteStop()
}

func compressionCodec(compression string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compression) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compression)
	}
}
