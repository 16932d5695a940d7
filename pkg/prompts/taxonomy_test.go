package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

func TestBuildProposeTaxonomyPrompt(t *testing.T) {
	samples := make([]models.ValueCount, 600)
	for i := range samples {
		samples[i] = models.ValueCount{Value: "v", Count: 1}
	}

	prompt := BuildProposeTaxonomyPrompt("industry", samples, nil)

	assert.Contains(t, prompt, `"industry"`)
	assert.Contains(t, prompt, "top 500 by frequency")
	assert.Contains(t, prompt, "from scratch")
	assert.NotContains(t, prompt, "## Guide")
	assert.Equal(t, 500, strings.Count(prompt, `"value":"v"`))
}

func TestBuildProposeTaxonomyPrompt_WithGuide(t *testing.T) {
	guide := []models.TaxonomyNode{{Name: "Finance"}}

	prompt := BuildProposeTaxonomyPrompt("industry", nil, guide)

	assert.Contains(t, prompt, "strict foundation")
	assert.Contains(t, prompt, "## Guide")
	assert.Contains(t, prompt, `{"name":"Finance"}`)
}

func TestBuildMapBatchPrompt(t *testing.T) {
	prompt := BuildMapBatchPrompt("company", []string{"Acme Corp", `Quote "Inc"`}, []models.TaxonomyNode{
		{Name: "Finance", Children: []models.TaxonomyNode{{Name: "Banking"}}},
	})

	assert.Contains(t, prompt, `"company"`)
	assert.Contains(t, prompt, `["Acme Corp","Quote \"Inc\""]`)
	assert.Contains(t, prompt, `[{"name":"Finance","children":[{"name":"Banking"}]}]`)
	assert.Contains(t, prompt, models.CatchAllName)
}
