package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/azure/brand-visibility-bot/internal/geo"
	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/azure/brand-visibility-bot/internal/providers"
	"github.com/invopop/jsonschema"
)

// FactorAssessment is the structured answer expected from the evaluator model
type FactorAssessment struct {
	Score  float64 `json:"score" jsonschema:"minimum=0,maximum=10" jsonschema_description:"Score from 0 (absent) to 10 (exemplary) for this factor"`
	Reason string  `json:"reason" jsonschema_description:"One or two sentences justifying the score"`
}

var assessmentSchema = generateSchema[FactorAssessment]()

func generateSchema[T any]() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var zero T
	schema := reflector.Reflect(zero)

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal schema: %v", err))
	}
	return string(data)
}

// LLMEvaluator grades rubric factors by asking an AI provider
type LLMEvaluator struct {
	provider providers.AIProvider
}

var _ geo.FactorEvaluator = (*LLMEvaluator)(nil)

func NewLLMEvaluator(provider providers.AIProvider) *LLMEvaluator {
	return &LLMEvaluator{provider: provider}
}

func (e *LLMEvaluator) EvaluateFactor(ctx context.Context, factor geo.Factor, text string) (float64, error) {
	completion, err := e.provider.Ask(ctx, buildFactorPrompt(factor, text))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", models.ErrEvaluationFailed, factor.Name, err)
	}

	assessment, err := parseAssessment(completion.Text)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", models.ErrEvaluationFailed, factor.Name, err)
	}
	return assessment.Score, nil
}

func buildFactorPrompt(factor geo.Factor, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are grading a blog post for generative engine optimization.\n\n")
	fmt.Fprintf(&b, "Factor: %s\n", factor.Name)
	fmt.Fprintf(&b, "What good looks like: %s\n\n", factor.Guidance)
	fmt.Fprintf(&b, "Respond with a single JSON object matching this schema and nothing else:\n%s\n\n", assessmentSchema)
	fmt.Fprintf(&b, "Blog post:\n---\n%s\n---\n", text)
	return b.String()
}

// parseAssessment accepts bare JSON or JSON wrapped in prose or code fences
func parseAssessment(raw string) (*FactorAssessment, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var a FactorAssessment
	if err := json.Unmarshal([]byte(raw[start:end+1]), &a); err != nil {
		return nil, fmt.Errorf("invalid assessment: %w", err)
	}
	return &a, nil
}
