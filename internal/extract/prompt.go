package extract

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/sells-group/crm-extract/internal/model"
)

const promptIntro = `You are an expert CRM data extraction assistant. Extract structured contact, company, and deal information from B2B sales meeting summaries.

Respond with a JSON object matching this JSON Schema:`

// Guidelines are business rules, not just wording: the validator and the
// sync step rely on values following them.
var guidelines = []string{
	"Extract only information explicitly mentioned in the text; never infer or fabricate values",
	"Set each entity's confidence (0-100) from how clearly the text states its information",
	"For deal value, give the numeric amount only (no currency symbols or separators)",
	`For company size, use a descriptive string such as "50 employees" or "small team"`,
	`For deal stage, use a standard sales stage such as "Qualified Lead", "Proposal", "Negotiation" when one can be identified`,
	`When no deal name is stated, name the deal "{Company} - {Product/Service}"`,
	"Use null for any field that is not mentioned; never use empty strings as placeholders",
	"Always include a confidence number for contact, company and deal",
}

// SystemPrompt returns the fixed extraction instruction prompt.
var SystemPrompt = sync.OnceValue(buildSystemPrompt)

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(promptIntro)
	b.WriteString("\n")
	b.WriteString(recordSchema())
	b.WriteString("\n\nGuidelines:\n")
	for _, g := range guidelines {
		b.WriteString("- ")
		b.WriteString(g)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// recordSchema renders the JSON Schema of model.ExtractedRecord.
func recordSchema() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&model.ExtractedRecord{})
	schema.Version = ""
	schema.ID = ""

	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		// The schema is derived from a static type; failure is a programming error.
		panic(err)
	}
	return string(b)
}
