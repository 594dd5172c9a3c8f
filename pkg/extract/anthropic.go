package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// extractionPrompt instructs the model to return the canonical schema as
// a single JSON object and nothing else. Agency hints (display name,
// known quirks) are interpolated so the model can disambiguate
// agency-specific shorthand.
const extractionPrompt = `You extract structured tutoring assignment data from a raw post.
Return a single JSON object matching this shape and nothing else:
{
  "external_id": string,
  "assignment_code": string,
  "academic_display_text": string,
  "lesson_schedule": [string],
  "time_availability_note": string,
  "tutor_type_tags": [string],
  "rate_raw_text": string,
  "rate_min": number|null,
  "rate_max": number|null,
  "address": [string],
  "postal_code": [string],
  "postal_code_estimated": [string],
  "is_compilation": boolean,
  "segments": [string]
}
If the post bundles multiple independent assignments, set is_compilation
true and populate segments with each independent excerpt verbatim;
otherwise leave segments empty.

Agency hints: %s

Post:
%s`

// AnthropicExtractor is the concrete C3 backend, calling the Anthropic
// Messages API for a single-pass structured extraction.
type AnthropicExtractor struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicExtractor builds a backend bound to apiKey and model.
func NewAnthropicExtractor(apiKey, model string) *AnthropicExtractor {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicExtractor{client: &client, model: anthropic.Model(model)}
}

// Extract implements Extractor by prompting the model for a single JSON
// document and parsing it into CanonicalExtraction. Network/5xx/rate-limit
// failures are wrapped in ErrTransient so BreakerExtractor retries them;
// anything else is ErrPermanent or ErrSchemaInvalid.
func (a *AnthropicExtractor) Extract(ctx context.Context, rawText string, agencyHints map[string]string) (*CanonicalExtraction, string, error) {
	hints, err := json.Marshal(agencyHints)
	if err != nil {
		return nil, "", fmt.Errorf("%w: marshaling agency hints: %v", ErrPermanent, err)
	}

	prompt := fmt.Sprintf(extractionPrompt, hints, rawText)

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, string(a.model), classifyAnthropicErr(err)
	}

	text := concatText(msg)
	var extraction CanonicalExtraction
	if err := json.Unmarshal([]byte(text), &extraction); err != nil {
		return nil, string(a.model), fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	extraction.Raw = json.RawMessage(text)

	if extraction.ExternalID == "" {
		return nil, string(a.model), fmt.Errorf("%w: missing external_id", ErrSchemaInvalid)
	}

	return &extraction, string(msg.Model), nil
}

func concatText(msg *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func classifyAnthropicErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return fmt.Errorf("%w: %v", ErrTransient, err)
		default:
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
