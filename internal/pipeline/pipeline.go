// Package pipeline runs one archive through ingestion, introspection,
// calibration and the engine stages, recording every outcome in a run log.
//
// Converter.Run never returns an error and never panics: every failure ends
// up as a single "Conversion Failed" message in the record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/born-ml/hailoconv/internal/archive"
	"github.com/born-ml/hailoconv/internal/calib"
	"github.com/born-ml/hailoconv/internal/config"
	"github.com/born-ml/hailoconv/internal/engine"
	"github.com/born-ml/hailoconv/internal/introspect"
	"github.com/born-ml/hailoconv/internal/logs"
	"github.com/born-ml/hailoconv/internal/onnx"
)

// Run record messages and data keys.
const (
	MsgConverting   = "Converting ONNX to Hailo-ONNX"
	MsgInspected    = "Inspected Model"
	MsgCalibration  = "Built Calibration Set"
	MsgStarting     = "Starting conversion"
	MsgTranslated   = "Translated Model"
	MsgOptimized    = "Optimized Model"
	MsgCompiled     = "Compiled Model"
	MsgExported     = "Exported Model"
	MsgSucceeded    = "Successful Conversion"
	MsgFailed       = "Conversion Failed"
	DataRunID       = "Run ID"
	DataTargetHW    = "Target Hardware"
	DataLogsPath    = "Logs path"
	DetailHuman     = "Human Error"
	DetailTechnical = "Technical Error"
)

// Opener starts engine sessions. *engine.Registry implements it.
type Opener interface {
	Open(name, hwArch string) (engine.Engine, error)
}

// Result is the outcome of a run.
type Result struct {
	RunID      string
	Stage      Stage // StageDone or StageFailed
	FailedAt   Stage
	OutputPath string
	Err        error
}

// Converter converts archives using one engine configuration.
type Converter struct {
	settings config.Settings
	engines  Opener
	record   *logs.Record
	logger   *slog.Logger
}

// NewConverter returns a converter writing to record. A nil logger discards
// console output.
func NewConverter(settings config.Settings, engines Opener, record *logs.Record, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Converter{
		settings: settings,
		engines:  engines,
		record:   record,
		logger:   logger,
	}
}

// Run converts the archive at archivePath into outputDir.
// outputDir must exist. Failures are recorded, not returned; the Result
// reports them to callers that need more than the record.
func (c *Converter) Run(ctx context.Context, archivePath, outputDir string) (res Result) {
	res.RunID = uuid.NewString()
	c.record.AddData(map[string]any{
		DataRunID:    res.RunID,
		DataTargetHW: c.settings.HWArch,
	})
	logger := c.logger.With("run_id", res.RunID)

	stage := StageStart
	defer func() {
		if r := recover(); r != nil {
			logger.Error("conversion panicked", "stage", stage, "panic", r, "stack", string(debug.Stack()))
			res = c.fail(res, stage, fmt.Errorf("%w during %s: %v", errInternal, stage, r))
		}
	}()

	out, err := c.convert(ctx, archivePath, outputDir, &stage, logger)
	if err != nil {
		logger.Error("conversion failed", "stage", stage, "error", err)
		return c.fail(res, stage, err)
	}

	logger.Info("conversion succeeded", "output", out)
	res.Stage = StageDone
	res.OutputPath = out
	return res
}

func (c *Converter) fail(res Result, stage Stage, err error) Result {
	kind, human := explain(err)
	c.record.AddMessage(MsgFailed, map[string]any{
		DetailHuman:     human,
		DetailTechnical: err.Error(),
		"Stage":         stage.String(),
		"Error Kind":    kind,
	})
	res.Stage = StageFailed
	res.FailedAt = stage
	res.Err = err
	return res
}

func (c *Converter) convert(ctx context.Context, archivePath, outputDir string, stage *Stage, logger *slog.Logger) (string, error) {
	scratch, err := c.settings.ScratchPath(outputDir)
	if err != nil {
		return "", err
	}
	if !c.settings.KeepScratch {
		defer func() {
			if err := os.RemoveAll(scratch); err != nil {
				logger.Warn("failed to remove scratch directory", "dir", scratch, "error", err)
			}
		}()
	}

	job, err := archive.Ingest(archivePath, scratch)
	if err != nil {
		return "", err
	}
	logger.Debug("archive ingested", "model", job.ModelPath, "images", len(job.CalibrationImages))
	c.record.AddMessage(MsgConverting, map[string]any{"Input Path": job.ModelPath})

	outputPath := filepath.Join(outputDir, job.ModelName()+c.settings.OutputSuffix)

	info, err := c.inspect(job)
	if err != nil {
		return "", err
	}

	batch, err := calib.NewBuilder(info).Build(ctx, job.CalibrationImages)
	if err != nil {
		return "", err
	}
	defer batch.Tensor.Release()
	c.record.AddMessage(MsgCalibration, map[string]any{
		"Images":   batch.Len(),
		"Shape":    fmt.Sprint(batch.Tensor.Shape()),
		"Fallback": batch.Fallback,
	})

	c.record.AddMessage(MsgStarting, map[string]any{DataTargetHW: c.settings.HWArch})
	eng, err := c.engines.Open(c.settings.Engine, c.settings.HWArch)
	if err != nil {
		return "", err
	}

	start, end := nodeBounds(job.Config.StartNodeNames), nodeBounds(job.Config.EndNodeNames)
	err = c.step(stage, StageTranslate, func() error {
		err := eng.Translate(ctx, job.ModelPath, c.settings.ModelName, start, end)
		var rec *engine.RecommendationError
		if errors.As(err, &rec) {
			// Recommendations are reported as plain translation failures.
			return errors.New(rec.Error())
		}
		return err
	})
	if err != nil {
		return "", err
	}
	c.record.AddMessage(MsgTranslated, map[string]any{
		"Model Name":  c.settings.ModelName,
		"Start Nodes": job.Config.StartNodeNames,
		"End Nodes":   job.Config.EndNodeNames,
	})

	err = c.step(stage, StageOptimize, func() error {
		return eng.Optimize(ctx, batch.Tensor)
	})
	if err != nil {
		return "", err
	}
	c.record.AddMessage(MsgOptimized, map[string]any{"Calibration Images": batch.Len()})

	var binary []byte
	err = c.step(stage, StageCompile, func() error {
		binary, err = eng.Compile(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	// The device binary is embedded in the runtime model; only its size is kept.
	c.record.AddMessage(MsgCompiled, map[string]any{"Binary Size": len(binary)})

	err = c.step(stage, StageExport, func() error {
		model, err := eng.ExportRuntimeModel(ctx)
		if err != nil {
			return err
		}
		if model == nil {
			return errors.New("engine returned no runtime model")
		}
		return onnx.SaveFile(model, outputPath)
	})
	if err != nil {
		return "", err
	}
	exported := map[string]any{"Output Path": outputPath}
	if sum, err := onnx.FileChecksum(outputPath); err == nil {
		exported["SHA256"] = sum
	} else {
		logger.Warn("failed to checksum output", "error", err)
	}
	c.record.AddMessage(MsgExported, exported)

	*stage = StageDone
	c.record.AddMessage(MsgSucceeded, map[string]any{
		"MIME type":   c.settings.MIMEType,
		"Output Path": outputPath,
	})
	return outputPath, nil
}

// inspect parses the model and derives the image input description.
func (c *Converter) inspect(job *archive.Job) (introspect.IOInfo, error) {
	model, err := onnx.ParseFile(job.ModelPath)
	if err != nil {
		return introspect.IOInfo{}, fmt.Errorf("failed to read ONNX model: %w", err)
	}

	info, err := introspect.Extract(model.Graph)
	if err != nil {
		return introspect.IOInfo{}, err
	}
	info = info.Apply(job.Config)
	if err := info.Validate(); err != nil {
		return introspect.IOInfo{}, err
	}

	summary := model.Info()
	c.record.AddMessage(MsgInspected, map[string]any{
		"IR Version":   summary.IRVersion,
		"Opset":        summary.OpsetVersion,
		"Producer":     summary.ProducerName,
		"Nodes":        summary.NodeCount,
		"Input Name":   info.InputName,
		"Input Shape":  fmt.Sprint(info.BatchShape(1)),
		"Layout":       info.Layout(),
		"Stats Source": info.Stats.Source.String(),
		"Stats Reason": info.Stats.Reason,
		"Means":        info.Stats.Means,
		"Stds":         info.Stats.Stds,
	})
	return info, nil
}

// step runs one engine stage and marks it done in the record.
func (c *Converter) step(cur *Stage, stage Stage, fn func() error) error {
	*cur = stage
	if err := fn(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	c.record.AddData(map[string]any{stage.dataKey(): "Done"})
	return nil
}

// nodeBounds maps an empty node list to nil, meaning the whole graph.
func nodeBounds(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	return names
}
