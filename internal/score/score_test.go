package score_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/chadsvasc/internal/score"
)

func TestCompute_Scenarios(t *testing.T) {
	tests := []struct {
		name    string
		factors score.PatientRiskFactors
		want    int
	}{
		{
			name:    "age band only",
			factors: score.PatientRiskFactors{Age: 65},
			want:    1,
		},
		{
			name: "elderly female with chf and stroke",
			factors: score.PatientRiskFactors{
				Age:         80,
				Female:      true,
				CHF:         true,
				StrokeOrTIA: true,
			},
			want: 6,
		},
		{
			name:    "young male without conditions",
			factors: score.PatientRiskFactors{Age: 40},
			want:    0,
		},
		{
			name:    "just below upper age band",
			factors: score.PatientRiskFactors{Age: 74, Female: true},
			want:    2,
		},
		{
			name: "maximum",
			factors: score.PatientRiskFactors{
				Age:             90,
				Female:          true,
				CHF:             true,
				Hypertension:    true,
				StrokeOrTIA:     true,
				VascularDisease: true,
				Diabetes:        true,
			},
			want: score.MaxScore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, score.Compute(tt.factors))
		})
	}
}

func TestAgePoints_Bands(t *testing.T) {
	assert.Equal(t, 0, score.AgePoints(0))
	assert.Equal(t, 0, score.AgePoints(64))
	assert.Equal(t, 1, score.AgePoints(65))
	assert.Equal(t, 1, score.AgePoints(74))
	assert.Equal(t, 2, score.AgePoints(75))
	assert.Equal(t, 2, score.AgePoints(120))
	assert.Equal(t, 2, score.AgePoints(1000))
}

func TestCompute_ZeroBelow65WithoutFactors(t *testing.T) {
	for age := 0; age < 65; age++ {
		assert.Zero(t, score.Compute(score.PatientRiskFactors{Age: age}), "age %d", age)
	}
}

func TestCompute_AgeIsMonotonic(t *testing.T) {
	for _, base := range allBooleanCombinations() {
		prev := -1
		for _, age := range []int{0, 64, 65, 74, 75, 120} {
			base.Age = age
			got := score.Compute(base)
			assert.GreaterOrEqual(t, got, prev, "age %d with %+v", age, base)
			prev = got
		}
	}
}

func TestCompute_FactorsAreIndependent(t *testing.T) {
	toggles := []struct {
		name   string
		weight int
		set    func(*score.PatientRiskFactors)
	}{
		{"female", 1, func(f *score.PatientRiskFactors) { f.Female = !f.Female }},
		{"chf", 1, func(f *score.PatientRiskFactors) { f.CHF = !f.CHF }},
		{"hypertension", 1, func(f *score.PatientRiskFactors) { f.Hypertension = !f.Hypertension }},
		{"stroke_tia", 2, func(f *score.PatientRiskFactors) { f.StrokeOrTIA = !f.StrokeOrTIA }},
		{"vascular_disease", 1, func(f *score.PatientRiskFactors) { f.VascularDisease = !f.VascularDisease }},
		{"diabetes", 1, func(f *score.PatientRiskFactors) { f.Diabetes = !f.Diabetes }},
	}

	for _, toggle := range toggles {
		t.Run(toggle.name, func(t *testing.T) {
			for _, age := range []int{30, 70, 80} {
				for _, base := range allBooleanCombinations() {
					base.Age = age
					flipped := base
					toggle.set(&flipped)

					diff := score.Compute(flipped) - score.Compute(base)
					if diff < 0 {
						diff = -diff
					}
					assert.Equal(t, toggle.weight, diff, "base %+v", base)
				}
			}
		})
	}
}

func TestCompute_RangeAndDeterminism(t *testing.T) {
	for _, age := range []int{0, 64, 65, 74, 75, 119} {
		for _, f := range allBooleanCombinations() {
			f.Age = age
			first := score.Compute(f)
			assert.Equal(t, first, score.Compute(f))
			assert.GreaterOrEqual(t, first, 0)
			assert.LessOrEqual(t, first, score.MaxScore)
		}
	}
}

func TestBreakdown_SumsToCompute(t *testing.T) {
	for _, age := range []int{50, 70, 90} {
		for _, f := range allBooleanCombinations() {
			f.Age = age
			total := 0
			for _, c := range score.Breakdown(f) {
				total += c.Points
			}
			assert.Equal(t, score.Compute(f), total, "%+v", f)
		}
	}
}

func TestBreakdown_Order(t *testing.T) {
	got := score.Breakdown(score.PatientRiskFactors{Age: 76, StrokeOrTIA: true})
	require.Len(t, got, 7)
	assert.Equal(t, "Congestive Heart Failure", got[0].Factor)
	assert.Equal(t, score.Contribution{Factor: "Age", Points: 2}, got[2])
	assert.Equal(t, score.Contribution{Factor: "Stroke or TIA", Points: 2}, got[4])
	assert.Equal(t, "Sex Category", got[6].Factor)
}

func TestValidate(t *testing.T) {
	require.NoError(t, score.Validate(score.PatientRiskFactors{Age: 0}))
	require.NoError(t, score.Validate(score.PatientRiskFactors{Age: 150}))

	err := score.Validate(score.PatientRiskFactors{Age: -1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, score.ErrNegativeAge))
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "CHA₂DS₂-VASc Score: 6", score.FormatScore(6))
}

func TestParseSex(t *testing.T) {
	female, err := score.ParseSex("Female")
	require.NoError(t, err)
	assert.True(t, female)

	female, err = score.ParseSex(" male ")
	require.NoError(t, err)
	assert.False(t, female)

	_, err = score.ParseSex("unknown")
	assert.ErrorIs(t, err, score.ErrUnknownSex)

	assert.Equal(t, "Female", score.SexLabel(true))
	assert.Equal(t, "Male", score.SexLabel(false))
}

// allBooleanCombinations enumerates the 64 settings of the six boolean fields.
func allBooleanCombinations() []score.PatientRiskFactors {
	out := make([]score.PatientRiskFactors, 0, 64)
	for mask := 0; mask < 64; mask++ {
		out = append(out, score.PatientRiskFactors{
			Female:          mask&1 != 0,
			CHF:             mask&2 != 0,
			Hypertension:    mask&4 != 0,
			StrokeOrTIA:     mask&8 != 0,
			VascularDisease: mask&16 != 0,
			Diabetes:        mask&32 != 0,
		})
	}
	return out
}
