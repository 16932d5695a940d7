package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

// MaxProposalSamples caps the sample values sent with a taxonomy proposal.
const MaxProposalSamples = 500

// ProposeTaxonomySystem is the system message for taxonomy proposals.
const ProposeTaxonomySystem = "Return JSON only. No markdown. No text outside the JSON."

// MapBatchSystem is the system message for batch mapping.
const MapBatchSystem = "Return JSON only. No markdown."

// BuildProposeTaxonomyPrompt asks for a hierarchical taxonomy for column,
// optionally anchored on a user-supplied guide.
func BuildProposeTaxonomyPrompt(column string, samples []models.ValueCount, guide []models.TaxonomyNode) string {
	if len(samples) > MaxProposalSamples {
		samples = samples[:MaxProposalSamples]
	}

	var prompt strings.Builder
	prompt.WriteString("# Taxonomy Proposal\n\n")
	prompt.WriteString(fmt.Sprintf("The dataset has a column named %q. ", column))
	prompt.WriteString("Propose a hierarchical taxonomy (parent > child > leaf) that categorizes its values.\n\n")

	prompt.WriteString(fmt.Sprintf("## Sample Values (top %d by frequency)\n\n", len(samples)))
	prompt.WriteString(mustJSON(samples))
	prompt.WriteString("\n\n## Rules\n\n")
	if len(guide) > 0 {
		prompt.WriteString("1. Use the GUIDE below as a strict foundation. You may add buckets but must not remove guide buckets.\n")
	} else {
		prompt.WriteString("1. Create a logical hierarchy from scratch.\n")
	}
	prompt.WriteString("2. Start from broad categories (e.g. \"Finance\") and break them down into specific niches (e.g. \"Investment Banking\").\n")
	prompt.WriteString("3. Mark every bucket that is not in the guide with \"isAiSuggested\": true.\n")
	prompt.WriteString(fmt.Sprintf("4. Do not propose a %q bucket; it always exists.\n", models.CatchAllName))

	if len(guide) > 0 {
		prompt.WriteString("\n## Guide\n\n")
		prompt.WriteString(mustJSON(guide))
		prompt.WriteString("\n")
	}

	prompt.WriteString("\n## Response Format\n\n")
	prompt.WriteString("Respond with a JSON object:\n")
	prompt.WriteString(`{"buckets": [{"name": "Parent Category", "description": "optional", "isAiSuggested": false, "children": [{"name": "Sub-Category", "children": []}]}]}`)
	prompt.WriteString("\n")
	return prompt.String()
}

// BuildMapBatchPrompt asks for a path for every value of one batch.
func BuildMapBatchPrompt(column string, values []string, taxonomy []models.TaxonomyNode) string {
	var prompt strings.Builder
	prompt.WriteString("# Value Mapping\n\n")
	prompt.WriteString(fmt.Sprintf("Map every value below from the column %q onto the taxonomy.\n\n", column))

	prompt.WriteString("## Taxonomy\n\n")
	prompt.WriteString(mustJSON(taxonomy))
	prompt.WriteString("\n\n## Values\n\n")
	prompt.WriteString(mustJSON(values))

	prompt.WriteString("\n\n## Rules\n\n")
	prompt.WriteString("1. Map EVERY value exactly as written. Do not skip any.\n")
	prompt.WriteString("2. Choose the most specific child or leaf bucket available.\n")
	prompt.WriteString("3. If a value fits a parent but no existing child, you may suggest a NEW child bucket in the path.\n")
	prompt.WriteString(fmt.Sprintf("4. If a value fits no category, use the path [%q].\n", models.CatchAllName))
	prompt.WriteString("5. The path lists bucket names from the root down to the assigned bucket.\n")

	prompt.WriteString("\n## Response Format\n\n")
	prompt.WriteString(`{"mappings": [{"value": "exact value from the list", "path": ["Parent", "Child", "Leaf"]}]}`)
	prompt.WriteString("\n")
	return prompt.String()
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
