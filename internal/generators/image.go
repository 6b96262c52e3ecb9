package generators

import (
	"context"
	"path"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/adapters/capability"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/workflow"
)

// ImageInput is the job data for generate-image.
type ImageInput struct {
	Prompt string `json:"prompt" validate:"required,max=4000"`
	Size   string `json:"size,omitempty" validate:"omitempty,oneof=256x256 512x512 1024x1024"`
}

// ImagePayload is the generate-image result. URL points at the stored copy.
type ImagePayload struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Bytes       int    `json:"bytes"`
}

type imageWorkflow struct {
	client Capability
}

func (w *imageWorkflow) Run(ctx context.Context, job *workflow.Job) (any, error) {
	var in ImageInput
	if err := decodeInput(job, &in); err != nil {
		return nil, err
	}
	if in.Size == "" {
		in.Size = "1024x1024"
	}

	sourceURL, err := workflow.Step(ctx, job, "generate", func(ctx context.Context) (string, error) {
		resp, err := w.client.Invoke(ctx, OpGenerateImage, map[string]any{"prompt": in.Prompt, "size": in.Size})
		if err != nil {
			return "", err
		}
		u, err := resp.Text()
		if err != nil {
			return "", workflow.Permanent(err)
		}
		return u, nil
	}, workflow.WithMessage("image generated"))
	if err != nil {
		return nil, err
	}

	art, err := workflow.Step(ctx, job, "fetch", func(ctx context.Context) (*capability.Artifact, error) {
		return w.client.Fetch(ctx, sourceURL)
	}, workflow.WithMessage("image downloaded"))
	if err != nil {
		return nil, err
	}

	storedURL, err := workflow.Step(ctx, job, "store", func(ctx context.Context) (string, error) {
		resp, err := w.client.Invoke(ctx, OpStoreArtifact, map[string]any{
			"key":          artifactKey(job),
			"content_type": art.ContentType,
			"data":         art.Data,
		})
		if err != nil {
			return "", err
		}
		u, err := resp.Text()
		if err != nil {
			return "", workflow.Permanent(err)
		}
		return u, nil
	}, workflow.WithMessage("image stored"))
	if err != nil {
		return nil, err
	}

	return ImagePayload{URL: storedURL, ContentType: art.ContentType, Bytes: len(art.Data)}, nil
}

func artifactKey(job *workflow.Job) string {
	t := job.Target
	return path.Join(t.ObjectType, t.ObjectID, t.ObjectKey, job.ID)
}
