package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/arena2036/vec-aas-uploader/internal/agent/generator"
	"github.com/arena2036/vec-aas-uploader/internal/models"
	"github.com/arena2036/vec-aas-uploader/pkg/converters"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

// User facing failure messages.
const (
	MessageNoFile          = "No file provided"
	MessageParseFailed     = "The uploaded file could not be processed."
	MessageGenerateFailed  = "Failed to create AAS"
	MessageCancelled       = "The request was cancelled."
	MessageUnexpectedError = "An unexpected error occurred."
)

// Config is threaded into the generateAas stage explicitly.
type Config struct {
	BlueprintIDs []string
	Language     string
	ViewerPath   string
}

// Runner executes one workflow run.
type Runner interface {
	Run(ctx context.Context, req models.UploadRequest) <-chan models.WorkflowUpdate
}

// Orchestrator runs upload -> process -> generateAas for a single request.
type Orchestrator struct {
	generator generator.Client
	config    Config
	logger    logger.Logger
}

func NewOrchestrator(client generator.Client, cfg Config, log logger.Logger) *Orchestrator {
	if cfg.ViewerPath == "" {
		cfg.ViewerPath = DefaultViewerPath
	}
	return &Orchestrator{
		generator: client,
		config:    cfg,
		logger:    log.Named("workflow"),
	}
}

// stageError ends a run with Message shown to the user.
type stageError struct {
	Message string
	Err     error
}

func (e *stageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *stageError) Unwrap() error {
	return e.Err
}

// runState is private to one run.
type runState struct {
	request     models.UploadRequest
	document    *converters.Node
	redirectURL string
}

type stage struct {
	name models.StepName
	fn   func(ctx context.Context, state *runState) error
}

func (o *Orchestrator) stages() []stage {
	return []stage{
		{name: models.StepUpload, fn: o.upload},
		{name: models.StepProcess, fn: o.process},
		{name: models.StepGenerateAas, fn: o.generateAas},
	}
}

// Run starts the pipeline in the background and returns its updates in
// order. The channel is closed after the terminal update and is buffered
// for a whole run, so an abandoned consumer never blocks the pipeline.
func (o *Orchestrator) Run(ctx context.Context, req models.UploadRequest) <-chan models.WorkflowUpdate {
	updates := make(chan models.WorkflowUpdate, 2*len(models.Steps))
	go func() {
		defer close(updates)
		o.run(ctx, req, func(u models.WorkflowUpdate) {
			updates <- u
		})
	}()
	return updates
}

// Execute runs the pipeline synchronously and returns the whole run.
func (o *Orchestrator) Execute(ctx context.Context, req models.UploadRequest) []models.WorkflowUpdate {
	var run []models.WorkflowUpdate
	o.run(ctx, req, func(u models.WorkflowUpdate) {
		run = append(run, u)
	})
	return run
}

func (o *Orchestrator) run(ctx context.Context, req models.UploadRequest, emit func(models.WorkflowUpdate)) {
	log := logger.FromContext(ctx, o.logger).With(
		logger.String("filename", req.File.Filename),
	)
	state := &runState{request: req}
	current := models.StepUpload

	defer func() {
		if r := recover(); r != nil {
			log.Error("Workflow stage panicked",
				logger.String("step", string(current)),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
			emit(models.FailedUpdate(current, MessageUnexpectedError))
		}
	}()

	for _, st := range o.stages() {
		current = st.name

		if err := ctx.Err(); err != nil {
			log.Warn("Workflow cancelled", logger.String("step", string(st.name)), logger.Error(err))
			emit(models.FailedUpdate(st.name, MessageCancelled))
			return
		}

		emit(models.ProcessingUpdate(st.name))
		if err := st.fn(ctx, state); err != nil {
			log.Error("Workflow step failed",
				logger.String("step", string(st.name)),
				logger.Error(err),
			)
			emit(models.FailedUpdate(st.name, userMessage(err)))
			return
		}

		update := models.CompletedUpdate(st.name)
		if st.name.IsLast() && state.redirectURL != "" {
			update.Result = &models.WorkflowResult{RedirectURL: state.redirectURL}
		}
		emit(update)
	}

	log.Info("Workflow completed", logger.String("redirectUrl", state.redirectURL))
}

func userMessage(err error) string {
	var se *stageError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return MessageUnexpectedError
}

// upload accepts the already validated file.
func (o *Orchestrator) upload(ctx context.Context, state *runState) error {
	if state.request.File.Content == nil {
		return &stageError{Message: MessageNoFile}
	}
	return nil
}

// process converts the VEC content into its JSON structure.
func (o *Orchestrator) process(ctx context.Context, state *runState) error {
	doc, err := converters.Parse(bytes.NewReader(state.request.File.Content))
	if err != nil {
		return &stageError{Message: MessageParseFailed, Err: err}
	}
	state.document = doc
	return nil
}

// generateAas hands the parsed document to the generator service.
func (o *Orchestrator) generateAas(ctx context.Context, state *runState) error {
	req := state.request
	assetIDShort := AssetIDShort(req.OrganizationName, req.UserName, req.File.Filename)

	resp, err := o.generator.CreateAas(ctx, generator.CreateAasRequest{
		AssetIDShort: assetIDShort,
		BlueprintIDs: o.config.BlueprintIDs,
		Data:         state.document,
		Language:     o.config.Language,
	})
	if err != nil {
		message := MessageGenerateFailed
		var upstream *generator.UpstreamError
		if errors.As(err, &upstream) && upstream.Message != "" {
			message = upstream.Message
		}
		return &stageError{Message: message, Err: err}
	}

	state.redirectURL = RedirectURL(o.config.ViewerPath, resp)
	if state.redirectURL == "" {
		o.logger.Warn("Generator returned no identifier", logger.String("assetIdShort", assetIDShort))
	}
	return nil
}
