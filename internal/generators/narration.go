package generators

import (
	"context"
	"errors"
	"fmt"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/workflow"
)

const durationMetadataKey = "duration_seconds"

// durationExpression finds the clip length in a synthesize response.
const durationExpression = "duration || data.duration"

// NarrationInput is the job data for generate-narration.
type NarrationInput struct {
	Text  string `json:"text"            validate:"required"`
	Voice string `json:"voice,omitempty" validate:"omitempty,max=64"`
}

// NarrationPayload is the generate-narration result: the chunk clips joined in text order.
type NarrationPayload struct {
	Audio           []byte  `json:"audio"`
	DurationSeconds float64 `json:"durationSeconds"`
	Chunks          int     `json:"chunks"`
}

type narrationWorkflow struct {
	client      Capability
	maxRunes    int
	concurrency int
}

// clip is a synthesized chunk awaiting download.
type clip struct {
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"durationSeconds"`
}

func (w *narrationWorkflow) Run(ctx context.Context, job *workflow.Job) (any, error) {
	var in NarrationInput
	if err := decodeInput(job, &in); err != nil {
		return nil, err
	}

	chunks := workflow.SplitText(in.Text, w.maxRunes)
	if len(chunks) == 0 {
		return nil, workflow.Permanent(errors.New("narration text is empty"))
	}
	if err := job.Report(ctx, "split", fmt.Sprintf("split into %d chunks", len(chunks)), nil); err != nil {
		return nil, fmt.Errorf("report split: %w", err)
	}

	outputs, err := workflow.Aggregate(ctx, job, workflow.AggregateOptions[clip, workflow.ChunkOutput]{
		Prefix:       "narration",
		Chunks:       chunks,
		Concurrency:  w.concurrency,
		FetchOptions: []workflow.StepOption{workflow.WithoutLedger()}, // clips are re-downloaded on redelivery
		Produce: func(ctx context.Context, _ int, chunk string) (clip, error) {
			return w.synthesize(ctx, chunk, in.Voice)
		},
		Fetch: func(ctx context.Context, index int, c clip) (workflow.ChunkOutput, error) {
			art, err := w.client.Fetch(ctx, c.URL)
			if err != nil {
				return workflow.ChunkOutput{}, err
			}
			return workflow.ChunkOutput{
				Index:    index,
				Data:     art.Data,
				Metadata: map[string]float64{durationMetadataKey: c.DurationSeconds},
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}

	merged := workflow.MergeChunks(outputs)
	return NarrationPayload{
		Audio:           merged.Data,
		DurationSeconds: merged.Metadata[durationMetadataKey],
		Chunks:          merged.Chunks,
	}, nil
}

func (w *narrationWorkflow) synthesize(ctx context.Context, text, voice string) (clip, error) {
	input := map[string]any{"text": text}
	if voice != "" {
		input["voice"] = voice
	}
	resp, err := w.client.Invoke(ctx, OpSynthesize, input)
	if err != nil {
		return clip{}, err
	}
	u, err := resp.Text()
	if err != nil {
		return clip{}, workflow.Permanent(err)
	}

	c := clip{URL: u}
	if d, err := resp.Search(durationExpression); err == nil {
		if f, ok := d.(float64); ok {
			c.DurationSeconds = f
		}
	}
	return c, nil
}
