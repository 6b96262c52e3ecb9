// Package generators holds the workflows the executor runs. Each workflow
// drives the external capability service through named workflow steps.
package generators

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/adapters/capability"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/workflow"
)

// Event names handled by this package.
const (
	EventGenerateText      = "generate-text"
	EventGenerateImage     = "generate-image"
	EventGenerateNarration = "generate-narration"
)

// Capability operations invoked by the workflows.
const (
	OpGenerateText  = "generate-text"
	OpGenerateImage = "generate-image"
	OpStoreArtifact = "store-artifact"
	OpSynthesize    = "synthesize"
)

// Capability is the external generation service.
type Capability interface {
	Invoke(ctx context.Context, op string, input any) (*capability.Response, error)
	Fetch(ctx context.Context, url string) (*capability.Artifact, error)
}

// Options tunes the shipped workflows.
type Options struct {
	// ChunkMaxRunes bounds each narration chunk.
	ChunkMaxRunes int
	// ChunkConcurrency bounds how many narration chunks are synthesized at once.
	ChunkConcurrency int
}

const (
	defaultChunkMaxRunes    = 1000
	defaultChunkConcurrency = 4
)

// Register adds the text, image and narration workflows to reg and registers
// their result payload types for decoding.
func Register(reg *workflow.Registry, client Capability, opts Options) error {
	if reg == nil {
		return errors.New("workflow registry is required")
	}
	if client == nil {
		return errors.New("capability is required")
	}
	if opts.ChunkMaxRunes <= 0 {
		opts.ChunkMaxRunes = defaultChunkMaxRunes
	}
	if opts.ChunkConcurrency <= 0 {
		opts.ChunkConcurrency = defaultChunkConcurrency
	}

	text := &textWorkflow{client: client}
	image := &imageWorkflow{client: client}
	narration := &narrationWorkflow{client: client, maxRunes: opts.ChunkMaxRunes, concurrency: opts.ChunkConcurrency}

	defs := []workflow.Definition{
		{EventName: EventGenerateText, Run: text.Run},
		{EventName: EventGenerateImage, Run: image.Run},
		{EventName: EventGenerateNarration, Run: narration.Run},
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}

	model.RegisterPayload(EventGenerateText, func() any { return &TextPayload{} })
	model.RegisterPayload(EventGenerateImage, func() any { return &ImagePayload{} })
	model.RegisterPayload(EventGenerateNarration, func() any { return &NarrationPayload{} })
	return nil
}

var inputValidator = validator.New()

// decodeInput decodes and validates the job data. Failures are permanent.
func decodeInput(job *workflow.Job, v any) error {
	if err := job.Decode(v); err != nil {
		return err
	}
	if err := inputValidator.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return workflow.Permanent(fmt.Errorf("invalid %s input: %s failed %q", job.EventName, verrs[0].Field(), verrs[0].Tag()))
		}
		return workflow.Permanent(fmt.Errorf("invalid %s input: %w", job.EventName, err))
	}
	return nil
}
