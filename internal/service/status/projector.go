package status

import (
	"github.com/arena2036/vec-aas-uploader/internal/models"
)

// StepState is the display state of one workflow step.
type StepState string

const (
	StepIdle      StepState = "idle"
	StepActive    StepState = "active"
	StepSucceeded StepState = "succeeded"
	StepFailed    StepState = "failed"
)

// DefaultErrorMessage is shown when a failed update carries no message.
const DefaultErrorMessage = "An error occurred while processing the file."

// Steps holds the state of each workflow step.
type Steps struct {
	Upload      StepState `json:"upload"`
	Process     StepState `json:"process"`
	GenerateAas StepState `json:"generateAas"`
}

// Get returns the state of a step; unknown or unset steps are idle.
func (s Steps) Get(name models.StepName) StepState {
	var state StepState
	switch name {
	case models.StepUpload:
		state = s.Upload
	case models.StepProcess:
		state = s.Process
	case models.StepGenerateAas:
		state = s.GenerateAas
	}
	if state == "" {
		return StepIdle
	}
	return state
}

func (s *Steps) set(name models.StepName, state StepState) {
	switch name {
	case models.StepUpload:
		s.Upload = state
	case models.StepProcess:
		s.Process = state
	case models.StepGenerateAas:
		s.GenerateAas = state
	}
}

// Projection is the UI facing state derived from the updates of one run.
type Projection struct {
	SessionID   string          `json:"sessionId,omitempty"`
	Generation  uint64          `json:"generation"`
	Steps       Steps           `json:"steps"`
	CurrentStep models.StepName `json:"currentStep,omitempty"`
	InProgress  bool            `json:"inProgress"`
	Complete    bool            `json:"complete"`
	Error       string          `json:"error,omitempty"`
	FailedStep  models.StepName `json:"failedStep,omitempty"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
	Updates     int             `json:"updates"`
}

// New returns the projection of a run that has not started.
func New() Projection {
	return Projection{
		Steps: Steps{Upload: StepIdle, Process: StepIdle, GenerateAas: StepIdle},
	}
}

// Project folds a whole update sequence.
func Project(updates ...models.WorkflowUpdate) Projection {
	p := New()
	for _, u := range updates {
		p = Apply(p, u)
	}
	return p
}

// Failed reports whether some step has failed.
func (p Projection) Failed() bool {
	for _, name := range models.Steps {
		if p.Steps.Get(name) == StepFailed {
			return true
		}
	}
	return false
}

// Terminal reports whether the run reached success or failure.
func (p Projection) Terminal() bool {
	return p.Complete || p.Failed()
}

// Started reports whether any step has left idle.
func (p Projection) Started() bool {
	for _, name := range models.Steps {
		if p.Steps.Get(name) != StepIdle {
			return true
		}
	}
	return false
}

// Apply folds one update into p. A terminated run ignores further updates,
// so the first failure stays the reported error. Processing for a step that is
// already active changes nothing.
func Apply(p Projection, u models.WorkflowUpdate) Projection {
	if p.Terminal() {
		return p
	}
	name := u.CurrentStep.Name
	if !name.Valid() {
		return p
	}

	switch u.CurrentStep.Status {
	case models.StepStatusProcessing:
		// submission already marks upload active before the run starts
		if p.Steps.Get(name) == StepActive {
			return p
		}
		p.Steps.set(name, StepActive)
	case models.StepStatusCompleted:
		p.Steps.set(name, StepSucceeded)
		if name.IsLast() && u.Result != nil && u.Result.RedirectURL != "" {
			p.RedirectURL = u.Result.RedirectURL
		}
	case models.StepStatusFailed:
		p.Steps.set(name, StepFailed)
		p.FailedStep = name
		p.Error = u.CurrentStep.Error
		if p.Error == "" {
			p.Error = DefaultErrorMessage
		}
	default:
		return p
	}

	p.Updates++
	return p.derive()
}

func (p Projection) derive() Projection {
	complete := true
	for _, name := range models.Steps {
		if p.Steps.Get(name) != StepSucceeded {
			complete = false
			break
		}
	}
	p.Complete = complete
	p.InProgress = p.Started() && !p.Failed() && !complete
	p.CurrentStep = currentStep(p.Steps)
	return p
}

// currentStep picks the step the workflow card shows: the latest active or
// failed step, else the step following the latest success.
func currentStep(s Steps) models.StepName {
	for i := len(models.Steps) - 1; i >= 0; i-- {
		state := s.Get(models.Steps[i])
		if state == StepActive || state == StepFailed {
			return models.Steps[i]
		}
	}
	for i := len(models.Steps) - 1; i >= 0; i-- {
		if s.Get(models.Steps[i]) == StepSucceeded {
			if i == len(models.Steps)-1 {
				return ""
			}
			return models.Steps[i+1]
		}
	}
	return ""
}
