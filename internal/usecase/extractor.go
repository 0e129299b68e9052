package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/model"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/internal/validator"
	"github.com/casefunnel/lead-intake/pkg/logger"
)

// CompletionClient is the text-generation dependency of the extractor.
type CompletionClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Extractor turns a transcript into structured lead data with exactly one
// model call. Extraction failures are soft: the pipeline marks the
// conversation processed-with-no-data rather than erroring, so a flaky model
// can never wedge webhook processing.
type Extractor struct {
	llm CompletionClient
}

// NewExtractor creates an extractor over a completions client.
func NewExtractor(llm CompletionClient) *Extractor {
	return &Extractor{llm: llm}
}

const extractionSystemPrompt = `You are a legal intake analyst. Extract structured lead data from the conversation transcript.

Respond with a single JSON object and nothing else, using exactly these keys:
{
  "case_category": one of [%s],
  "location": "city and state the client mentioned, or empty string",
  "urgency_score": integer 1-10 (10 = needs a lawyer immediately),
  "contact_name": "client's name or empty string",
  "contact_email": "client's email or empty string",
  "contact_phone": "client's phone number or empty string",
  "summary": "2-3 sentence summary of the legal matter"
}

If the transcript does not describe a legal matter, still respond with the JSON object, using "other" as the case_category.`

// Extract runs one extraction over the transcript. On success it returns the
// normalized lead data plus the raw model JSON for storage. On model error or
// unparseable output it returns (nil, nil): logged, counted, never retried.
func (e *Extractor) Extract(ctx context.Context, transcript string) (*model.ExtractedLead, []byte) {
	log := logger.FromContext(ctx)

	system := fmt.Sprintf(extractionSystemPrompt, quotedTaxonomy())
	output, err := e.llm.Complete(ctx, system, transcript)
	if err != nil {
		log.Warn("Lead extraction model call failed", zap.Error(err))
		observer.IncExtractionResult("model_error")
		return nil, nil
	}

	raw := []byte(stripCodeFences(output))

	var extracted model.ExtractedLead
	if err := json.Unmarshal(raw, &extracted); err != nil {
		log.Warn("Lead extraction returned unparseable JSON",
			zap.String("output_prefix", truncate(output, 200)),
			zap.Error(err))
		observer.IncExtractionResult("bad_json")
		return nil, nil
	}
	if err := validator.Validate(&extracted); err != nil {
		log.Warn("Lead extraction output failed validation", zap.Error(err))
		observer.IncExtractionResult("invalid")
		return nil, nil
	}

	extracted.Normalize()
	if extracted.Summary == "" && extracted.ContactEmail == "" && extracted.ContactPhone == "" {
		observer.IncExtractionResult("empty")
	} else {
		observer.IncExtractionResult("extracted")
	}
	return &extracted, raw
}

func quotedTaxonomy() string {
	quoted := make([]string, len(model.PracticeAreas))
	for i, area := range model.PracticeAreas {
		quoted[i] = `"` + area + `"`
	}
	return strings.Join(quoted, ", ")
}

// stripCodeFences removes a markdown code fence wrapper, which some models
// add despite the prompt.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
