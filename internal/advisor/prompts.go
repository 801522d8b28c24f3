package advisor

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Skufu/chadsvasc/internal/risktable"
	"github.com/Skufu/chadsvasc/internal/score"
)

// TemplateVersion is part of every cache key, so editing the template below
// must come with a bump here.
const TemplateVersion = "2023-06.1"

// RecommendationTemplate is the only copy of the anticoagulation guidance
// context. The form and the recommendation endpoint both render it through
// RenderRecommendationPrompt.
const RecommendationTemplate = `Task: Determine if anticoagulation is recommended based on the patient's CHA2DS2-VASc score, sex, and context.

CHA2DS2-VASc Score: {{.Score}}

Sex: {{.Sex}}

Context: Most guidelines suggest that scores of 0 (men) or 1 (women) do not require treatment; however, all other patients should receive anticoagulation, preferably with a direct oral anticoagulant (unless contraindicated).
Anticoagulation is not recommended in patients with non-valvular AF and a CHA2DS2-VASc score of 0 if male or 1 if female, as these patients had no TE events in the original study.
Depending on a patient's preferences and individual risk factors, anticoagulation can be considered for a CHA2DS2-VASc score of 1 in males and 2 in females.
Anticoagulation should be started in patients with a CHA2DS2-VASc score of >2 if male or >3 if female.

Note: State if anticoagulation is recommended and nothing else. Only use the information from the context in your determination. Don't add any additional information. Limit your response to one sentence.`

const riskQuestionTemplate = `You are given a CSV table of annual stroke risk (percent per year) by CHA2DS2-VASc score.

{{.Table}}
Answer the question using only the table. Reply with the percentage and the column it came from, in one short sentence.

Question: What is the risk of {{.StrokeType}} stroke for a score of {{.Score}}?`

var (
	recommendationTmpl = template.Must(template.New("recommendation").Parse(RecommendationTemplate))
	riskQuestionTmpl   = template.Must(template.New("risk").Parse(riskQuestionTemplate))
)

// RenderRecommendationPrompt fills the shared template with a score and a sex
// label ("Male" or "Female").
func RenderRecommendationPrompt(n int, sex string) (string, error) {
	if n < 0 || n > score.MaxScore {
		return "", fmt.Errorf("score %d out of range 0..%d", n, score.MaxScore)
	}
	female, err := score.ParseSex(sex)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = recommendationTmpl.Execute(&buf, struct {
		Score int
		Sex   string
	}{n, score.SexLabel(female)})
	if err != nil {
		return "", fmt.Errorf("render recommendation prompt: %w", err)
	}
	return buf.String(), nil
}

// RenderRiskQuestion builds the table question asked of the model.
func RenderRiskQuestion(table *risktable.Table, n int, st risktable.StrokeType) (string, error) {
	var buf bytes.Buffer
	err := riskQuestionTmpl.Execute(&buf, struct {
		Table      string
		StrokeType string
		Score      int
	}{table.CSV(), st.String(), n})
	if err != nil {
		return "", fmt.Errorf("render risk question: %w", err)
	}
	return buf.String(), nil
}
