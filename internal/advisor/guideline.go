package advisor

import (
	"fmt"
	"strings"

	"github.com/Skufu/chadsvasc/internal/risktable"
	"github.com/Skufu/chadsvasc/internal/score"
)

// GuidelineRecommendation states the same thresholds RecommendationTemplate
// carries, without a model. The sex point is discounted first: 0 remaining
// points means no treatment, 1 means consider, 2 or more means treat.
func GuidelineRecommendation(n int, female bool) string {
	sex := strings.ToLower(score.SexLabel(female))
	points := n
	if female {
		points--
	}

	switch {
	case points <= 0:
		return fmt.Sprintf("Anticoagulation is not recommended for a %s patient with a CHA2DS2-VASc score of %d.", sex, n)
	case points == 1:
		return fmt.Sprintf("Anticoagulation can be considered for a %s patient with a CHA2DS2-VASc score of %d, depending on the patient's preferences and individual risk factors.", sex, n)
	default:
		return fmt.Sprintf("Anticoagulation is recommended for a %s patient with a CHA2DS2-VASc score of %d, preferably with a direct oral anticoagulant unless contraindicated.", sex, n)
	}
}

// LookupAnswer phrases a table lookup the way the model is asked to.
func LookupAnswer(table *risktable.Table, n int, st risktable.StrokeType) (string, error) {
	risk, err := table.Lookup(n, st)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%% per year (%s, score %d).", risk.StringFixed(1), st.Column(), n), nil
}
