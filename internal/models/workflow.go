package models

// StepName 工作流步骤名称
type StepName string

const (
	StepUpload      StepName = "upload"
	StepProcess     StepName = "process"
	StepGenerateAas StepName = "generateAas"
)

// Steps lists every workflow step in execution order.
var Steps = []StepName{StepUpload, StepProcess, StepGenerateAas}

// Index returns the position of the step in the workflow, or -1 for unknown names.
func (n StepName) Index() int {
	for i, s := range Steps {
		if s == n {
			return i
		}
	}
	return -1
}

func (n StepName) Valid() bool {
	return n.Index() >= 0
}

// IsLast reports whether n is the final step of the workflow.
func (n StepName) IsLast() bool {
	return n == Steps[len(Steps)-1]
}

// StepStatus 步骤状态
type StepStatus string

const (
	StepStatusProcessing StepStatus = "processing"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
)

// CurrentStep describes the step an update refers to.
type CurrentStep struct {
	Name   StepName   `json:"name"`
	Status StepStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// WorkflowResult is attached to the final successful update.
type WorkflowResult struct {
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// WorkflowUpdate is a single entry of a workflow run. Updates are values and
// are never modified after they have been emitted.
type WorkflowUpdate struct {
	CurrentStep CurrentStep     `json:"currentStep"`
	Result      *WorkflowResult `json:"result,omitempty"`
}

func ProcessingUpdate(step StepName) WorkflowUpdate {
	return WorkflowUpdate{CurrentStep: CurrentStep{Name: step, Status: StepStatusProcessing}}
}

func CompletedUpdate(step StepName) WorkflowUpdate {
	return WorkflowUpdate{CurrentStep: CurrentStep{Name: step, Status: StepStatusCompleted}}
}

func FailedUpdate(step StepName, message string) WorkflowUpdate {
	return WorkflowUpdate{CurrentStep: CurrentStep{Name: step, Status: StepStatusFailed, Error: message}}
}

// IsTerminal reports whether no further updates follow this one in a run.
func (u WorkflowUpdate) IsTerminal() bool {
	switch u.CurrentStep.Status {
	case StepStatusFailed:
		return true
	case StepStatusCompleted:
		return u.CurrentStep.Name.IsLast()
	}
	return false
}
