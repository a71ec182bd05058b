package archive

import (
	"log/slog"

	draptolib "github.com/five82/drapto"

	"dubsync/internal/logging"
)

// reporter adapts the Drapto Reporter interface to a Progress callback.
// Events without a progress meaning go to the logger.
type reporter struct {
	callback func(Progress)
	logger   *slog.Logger
}

func newReporter(callback func(Progress), logger *slog.Logger) *reporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &reporter{callback: callback, logger: logger}
}

func (r *reporter) emit(p Progress) {
	if r.callback != nil {
		r.callback(p)
	}
}

func (r *reporter) Hardware(s draptolib.HardwareSummary) {
	r.logger.Debug("drapto hardware", logging.String("hostname", s.Hostname))
}

func (r *reporter) Initialization(s draptolib.InitializationSummary) {
	r.logger.Debug("drapto initialized",
		logging.String("input", s.InputFile),
		logging.String("output", s.OutputFile),
		logging.String("resolution", s.Resolution),
	)
}

func (r *reporter) StageProgress(s draptolib.StageProgress) {
	r.emit(Progress{Percent: float64(s.Percent), Stage: s.Stage, Message: s.Message})
}

func (r *reporter) CropResult(s draptolib.CropSummary) {
	r.logger.Debug("drapto crop", logging.String("crop", s.Crop), logging.Bool("required", s.Required))
}

func (r *reporter) EncodingConfig(s draptolib.EncodingConfigSummary) {
	r.logger.Debug("drapto encoding config",
		logging.String("encoder", s.Encoder),
		logging.String("preset", s.Preset),
		logging.String("audio_codec", s.AudioCodec),
	)
}

func (r *reporter) EncodingStarted(totalFrames uint64) {
	r.emit(Progress{Stage: "encoding", Message: "started"})
}

func (r *reporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	r.emit(Progress{Percent: float64(s.Percent), Stage: "encoding"})
}

func (r *reporter) ValidationComplete(s draptolib.ValidationSummary) {
	for _, step := range s.Steps {
		if !step.Passed {
			r.logger.Warn("drapto validation step failed",
				logging.String("step", step.Name),
				logging.String("details", step.Details),
			)
		}
	}
}

func (r *reporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.emit(Progress{Percent: 100, Stage: "complete", Message: s.OutputPath})
}

func (r *reporter) Warning(message string) {
	r.logger.Warn("drapto warning", logging.String("message", message))
}

func (r *reporter) Error(e draptolib.ReporterError) {
	r.logger.Warn("drapto error",
		logging.String("title", e.Title),
		logging.String("message", e.Message),
		logging.String(logging.FieldErrorHint, e.Suggestion),
	)
}

func (r *reporter) OperationComplete(message string) {
	r.logger.Debug("drapto operation complete", logging.String("message", message))
}

func (r *reporter) BatchStarted(draptolib.BatchStartInfo) {}

func (r *reporter) FileProgress(draptolib.FileProgressContext) {}

func (r *reporter) BatchComplete(draptolib.BatchSummary) {}

var _ draptolib.Reporter = (*reporter)(nil)
