package generators

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/workflow"
)

// TextInput is the job data for generate-text.
type TextInput struct {
	// Prompt is used verbatim when set; otherwise one is built from Subject and Context.
	Prompt    string            `json:"prompt,omitempty"    validate:"required_without=Subject"`
	Subject   string            `json:"subject,omitempty"   validate:"required_without=Prompt"`
	Context   map[string]string `json:"context,omitempty"`
	MaxTokens int               `json:"maxTokens,omitempty" validate:"omitempty,min=1,max=8192"`
}

// TextPayload is the generate-text result.
type TextPayload struct {
	Text string `json:"text"`
}

type textWorkflow struct {
	client Capability
}

func (w *textWorkflow) Run(ctx context.Context, job *workflow.Job) (any, error) {
	var in TextInput
	if err := decodeInput(job, &in); err != nil {
		return nil, err
	}

	prompt, err := workflow.Step(ctx, job, "prompt", func(context.Context) (string, error) {
		return buildPrompt(job.Target.ObjectKey, in), nil
	}, workflow.WithMessage("prompt built"))
	if err != nil {
		return nil, err
	}

	text, err := workflow.Step(ctx, job, "generate", func(ctx context.Context) (string, error) {
		resp, err := w.client.Invoke(ctx, OpGenerateText, map[string]any{
			"prompt":     prompt,
			"max_tokens": in.MaxTokens,
		})
		if err != nil {
			return "", err
		}
		out, err := resp.Text()
		if err != nil {
			return "", workflow.Permanent(err)
		}
		return strings.TrimSpace(out), nil
	}, workflow.WithMessage("text generated"))
	if err != nil {
		return nil, err
	}

	return TextPayload{Text: text}, nil
}

// buildPrompt renders a deterministic prompt so that retries and redeliveries
// ask for the same thing.
func buildPrompt(kind string, in TextInput) string {
	if p := strings.TrimSpace(in.Prompt); p != "" {
		return p
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s for %s.", kind, strings.TrimSpace(in.Subject))

	keys := make([]string, 0, len(in.Context))
	for k := range in.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, strings.TrimSpace(in.Context[k]))
	}
	return b.String()
}
