package service

import (
	"fmt"

	"bistrobooks/internal/domain"
)

// Stage names the pipeline step a run has reached. Failures carry the stage
// they occurred in so operators can tell a dead backend from a model that
// answered garbage.
type Stage string

const (
	StageReceived         Stage = "received"
	StageTemplateSelected Stage = "template_selected"
	StageModelInvoked     Stage = "model_invoked"
	StageParseRetry       Stage = "parse_retry"
	StageParsed           Stage = "parsed"
	StageClassified       Stage = "classified"
	StageDone             Stage = "done"
)

// PipelineError is the typed failure of a pipeline run. RawOutput holds the
// last raw model output when one exists; it is kept off the error string so
// receipt contents never reach logs, but stays available for operators
// debugging a failing prompt.
type PipelineError struct {
	Stage     Stage
	Modality  domain.Modality
	RawOutput string
	Err       error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s (%s): %v", e.Stage, e.Modality, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func newPipelineError(stage Stage, modality domain.Modality, rawOutput string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Modality: modality, RawOutput: rawOutput, Err: err}
}
