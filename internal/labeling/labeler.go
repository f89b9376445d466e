// Package labeling talks to the external model that labels transactions the
// deterministic rules could not, and defensively validates what comes back.
package labeling

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/txn-categorizer/internal/domain"
	"google.golang.org/genai"
)

// DefaultModelName is the model used for labeling unless TXN_LABELING_MODEL
// overrides it.
const DefaultModelName = "gemini-2.5-flash"

// ModelName returns the configured labeling model.
func ModelName() string {
	if v := os.Getenv("TXN_LABELING_MODEL"); v != "" {
		return v
	}
	return DefaultModelName
}

// GeminiLabeler labels transaction batches with Gemini.
type GeminiLabeler struct {
	model string
}

// NewGeminiLabeler creates a labeler for the configured model.
func NewGeminiLabeler() *GeminiLabeler {
	return &GeminiLabeler{model: ModelName()}
}

// LabelBatch sends one batch of uncategorized transactions to the model and
// returns the raw response text. One blocking round trip per batch; parsing
// and validation are the caller's problem so the raw payload stays available
// for diagnosis.
func (l *GeminiLabeler) LabelBatch(ctx context.Context, txns []domain.UncategorizedTransaction) (string, error) {
	prompt, err := buildLabelingPrompt(txns)
	if err != nil {
		return "", &domain.LabelingServiceError{Err: fmt.Errorf("building prompt: %w", err)}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", &domain.LabelingServiceError{Err: fmt.Errorf("create genai client: %w", err)}
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, l.model, contents, nil)
	if err != nil {
		return "", &domain.LabelingServiceError{Err: fmt.Errorf("generate content: %w", err)}
	}

	rawText := resp.Text()
	if rawText == "" {
		return "", &domain.LabelingServiceError{Err: fmt.Errorf("empty response from model")}
	}

	return rawText, nil
}
