// Package score implements the CHA₂DS₂-VASc stroke-risk score for patients
// with atrial fibrillation.
package score

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxScore is the highest attainable score.
	MaxScore = 9

	// Label prefixes every human-readable score line.
	Label = "CHA₂DS₂-VASc Score: "
)

var (
	ErrNegativeAge = errors.New("age must not be negative")
	ErrUnknownSex  = errors.New("sex must be Male or Female")
)

// PatientRiskFactors is the input to Compute. It is built from caller-supplied
// values right before scoring and is never stored.
type PatientRiskFactors struct {
	Age             int  `json:"age"`
	Female          bool `json:"female"`
	CHF             bool `json:"chf"`
	Hypertension    bool `json:"hypertension"`
	StrokeOrTIA     bool `json:"stroke_tia"`
	VascularDisease bool `json:"vascular_disease"`
	Diabetes        bool `json:"diabetes"`
}

// Contribution is the number of points a single factor adds to the score.
type Contribution struct {
	Factor string `json:"factor"`
	Points int    `json:"points"`
}

// Compute returns the CHA₂DS₂-VASc score for f. The age is assumed to be
// non-negative; callers run Validate first.
func Compute(f PatientRiskFactors) int {
	total := AgePoints(f.Age)
	if f.Female {
		total++
	}
	if f.CHF {
		total++
	}
	if f.Hypertension {
		total++
	}
	if f.StrokeOrTIA {
		total += 2
	}
	if f.VascularDisease {
		total++
	}
	if f.Diabetes {
		total++
	}
	return total
}

// AgePoints is the age term: 0 below 65, 1 for 65 to 74, 2 from 75.
func AgePoints(age int) int {
	switch {
	case age >= 75:
		return 2
	case age >= 65:
		return 1
	default:
		return 0
	}
}

// Breakdown lists every factor with the points it contributes, in the order
// the acronym spells them. The points always sum to Compute(f).
func Breakdown(f PatientRiskFactors) []Contribution {
	return []Contribution{
		{Factor: "Congestive Heart Failure", Points: points(f.CHF, 1)},
		{Factor: "Hypertension", Points: points(f.Hypertension, 1)},
		{Factor: "Age", Points: AgePoints(f.Age)},
		{Factor: "Diabetes", Points: points(f.Diabetes, 1)},
		{Factor: "Stroke or TIA", Points: points(f.StrokeOrTIA, 2)},
		{Factor: "Vascular Disease", Points: points(f.VascularDisease, 1)},
		{Factor: "Sex Category", Points: points(f.Female, 1)},
	}
}

// Validate rejects inputs outside the domain Compute accepts.
func Validate(f PatientRiskFactors) error {
	if f.Age < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeAge, f.Age)
	}
	return nil
}

// FormatScore renders n the way the form and the text endpoint display it.
func FormatScore(n int) string {
	return fmt.Sprintf("%s%d", Label, n)
}

// ParseSex maps "Male" or "Female" (any case) to the Female flag.
func ParseSex(label string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "female", "f":
		return true, nil
	case "male", "m":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownSex, label)
	}
}

func SexLabel(female bool) string {
	if female {
		return "Female"
	}
	return "Male"
}

func points(present bool, weight int) int {
	if present {
		return weight
	}
	return 0
}
