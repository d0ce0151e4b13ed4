package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/brightline/vantage/internal/schema"
)

// Compile-time interface checks
var (
	_ Researcher = (*OpenAI)(nil)
	_ Summarizer = (*OpenAI)(nil)
	_ Discoverer = (*OpenAI)(nil)
)

// ChatService defines the interface for making chat completion calls.
// This abstraction enables testing without calling the real OpenAI API.
type ChatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI implements the research collaborator on the OpenAI chat API.
type OpenAI struct {
	chat           ChatService
	model          openai.ChatModel
	companyContext string
	schema         *schema.Schema
}

// NewOpenAI creates a research client. companyContext describes the company
// the analysis is performed for and is embedded in every prompt.
func NewOpenAI(apiKey, model, companyContext string, s *schema.Schema) *OpenAI {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{
		chat:           client.Chat.Completions,
		model:          openai.ChatModel(model),
		companyContext: companyContext,
		schema:         s,
	}
}

// Research asks the model for a structured extraction of one competitor.
// The response must be a single JSON object keyed by schema attribute names;
// anything else is a permanent (non-retried) failure.
func (o *OpenAI) Research(ctx context.Context, displayName string) (RawExtraction, error) {
	content, err := o.complete(ctx,
		"You are a competitive intelligence analyst. Respond with a single JSON object and nothing else.",
		o.researchPrompt(displayName))
	if err != nil {
		return nil, err
	}

	var raw RawExtraction
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &raw); err != nil {
		return nil, fmt.Errorf("research response for %q is not a JSON object: %w", displayName, err)
	}
	return raw, nil
}

// Summarize condenses per-competitor change lines into an executive summary.
func (o *OpenAI) Summarize(ctx context.Context, changes []string) (string, error) {
	prompt := fmt.Sprintf(
		"Company context:\n%s\n\nThe following competitor attributes changed since the last sync:\n- %s\n\nWrite a short executive summary of the most significant changes, ordered by impact. Plain text, no markdown.",
		o.companyContext, strings.Join(changes, "\n- "))

	content, err := o.complete(ctx,
		"You are a competitive intelligence analyst writing for an executive audience.",
		prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// Discover asks the model for competitors that are not yet tracked.
// Names are returned as-is; the caller decides whether to adopt them.
func (o *OpenAI) Discover(ctx context.Context, existing []string, lookback time.Duration) ([]string, error) {
	days := int(lookback.Hours() / 24)
	if days < 1 {
		days = 1
	}
	prompt := fmt.Sprintf(
		"Company context:\n%s\n\nCurrently tracked competitors: %s.\n\nList companies that emerged or became relevant as competitors in the last %d days and are NOT in the tracked list. Respond with a JSON array of company names only. Respond with [] if there are none.",
		o.companyContext, strings.Join(existing, ", "), days)

	content, err := o.complete(ctx,
		"You are a competitive intelligence analyst. Respond with a single JSON array and nothing else.",
		prompt)
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &names); err != nil {
		return nil, fmt.Errorf("discovery response is not a JSON array: %w", err)
	}
	return names, nil
}

func (o *OpenAI) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.chat.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		}),
		Model: openai.F(o.model),
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("research call returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// researchPrompt builds the extraction prompt from the schema so the model
// returns exactly the attribute set the normalizer expects.
func (o *OpenAI) researchPrompt(displayName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Company context:\n%s\n\n", o.companyContext)
	fmt.Fprintf(&b, "Research the competitor %q and return a JSON object with exactly these keys:\n", displayName)
	for _, attr := range o.schema.Attributes() {
		fmt.Fprintf(&b, "  - %s (%s)\n", attr.Name, attr.Type)
	}
	b.WriteString("\nUse null for anything you cannot determine. Do not invent values. Respond with the JSON object only.")
	return b.String()
}

// classify maps API failures to the transient/permanent split the retry
// policy operates on.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

// stripCodeFence removes a surrounding markdown code fence, which some
// models wrap around JSON despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
