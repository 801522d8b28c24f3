package main

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Skufu/chadsvasc/internal/risktable"
	"github.com/Skufu/chadsvasc/internal/score"
)

const (
	formMinAge     = 0
	formMaxAge     = 120
	formDefaultAge = 65
)

var templateFuncs = template.FuncMap{
	"lower": strings.ToLower,
}

// formView backs templates/index.html.
type formView struct {
	Age             string
	Female          bool
	CHF             bool
	Hypertension    bool
	StrokeOrTIA     bool
	VascularDisease bool
	Diabetes        bool
	StrokeType      string

	Errors         []string
	Scored         bool
	Label          string
	Breakdown      []score.Contribution
	Recommendation *RecommendationResponse
	RiskAnswer     *RiskAnswerResponse

	AdvisorEnabled bool
	Model          string
	Models         []string
	Rows           []risktable.Row
	Chart          riskChart
	Citation       string
}

const (
	chartWidth  = 400
	chartHeight = 200
	chartPad    = 30
	chartMaxPct = 20
)

// riskChart holds SVG polyline points for both table columns by score.
type riskChart struct {
	Width, Height     int
	Ischemic, Embolic string
	XTicks            []chartTick
	YTicks            []chartTick
}

type chartTick struct {
	Pos   float64
	Label string
}

func newRiskChart(rows []risktable.Row) riskChart {
	ch := riskChart{Width: chartWidth, Height: chartHeight}
	plotW := float64(chartWidth - 2*chartPad)
	plotH := float64(chartHeight - 2*chartPad)

	x := func(n int) float64 { return chartPad + plotW*float64(n)/float64(score.MaxScore) }
	y := func(pct float64) float64 { return chartHeight - chartPad - plotH*pct/chartMaxPct }

	var isc, emb []string
	for _, r := range rows {
		isc = append(isc, fmt.Sprintf("%.1f,%.1f", x(r.Score), y(r.Ischemic.InexactFloat64())))
		emb = append(emb, fmt.Sprintf("%.1f,%.1f", x(r.Score), y(r.Embolic.InexactFloat64())))
	}
	ch.Ischemic = strings.Join(isc, " ")
	ch.Embolic = strings.Join(emb, " ")

	for n := 0; n <= score.MaxScore; n++ {
		ch.XTicks = append(ch.XTicks, chartTick{Pos: x(n), Label: strconv.Itoa(n)})
	}
	for pct := 0; pct <= chartMaxPct; pct += 5 {
		ch.YTicks = append(ch.YTicks, chartTick{Pos: y(float64(pct)), Label: strconv.Itoa(pct)})
	}
	return ch
}

func (d *dependencies) newFormView() formView {
	return formView{
		Age:            strconv.Itoa(formDefaultAge),
		StrokeType:     risktable.Ischemic.String(),
		AdvisorEnabled: d.advisor.Enabled(),
		Model:          d.advisor.Model(),
		Models:         d.advisor.Models(),
		Rows:           d.table.Rows(),
		Chart:          newRiskChart(d.table.Rows()),
		Citation:       risktable.Citation,
	}
}

func (d *dependencies) showForm(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", d.newFormView())
}

// submitForm scores the posted form. The "action" button picks what runs
// after scoring: nothing, a recommendation, or a stroke-risk question.
func (d *dependencies) submitForm(c *gin.Context) {
	view := d.newFormView()
	view.Age = strings.TrimSpace(c.PostForm("age"))
	for _, box := range []struct {
		name, label string
		dst         *bool
	}{
		{"chf", "Congestive heart failure", &view.CHF},
		{"hypertension", "Hypertension", &view.Hypertension},
		{"stroke_tia", "Stroke or TIA", &view.StrokeOrTIA},
		{"vascular_disease", "Vascular disease", &view.VascularDisease},
		{"diabetes", "Diabetes", &view.Diabetes},
	} {
		v, err := checked(c, box.name)
		if err != nil {
			view.Errors = append(view.Errors, box.label+" must be checked or unchecked.")
		}
		*box.dst = v
	}

	age, err := strconv.Atoi(view.Age)
	if err != nil {
		view.Errors = append(view.Errors, "Age must be a whole number.")
	} else if age < formMinAge || age > formMaxAge {
		view.Errors = append(view.Errors, "Age must be between 0 and 120.")
	}

	female, err := score.ParseSex(c.DefaultPostForm("sex", "Male"))
	if err != nil {
		view.Errors = append(view.Errors, "Sex must be Male or Female.")
	}
	view.Female = female

	st, err := risktable.ParseStrokeType(c.DefaultPostForm("stroke_type", "Ischemic"))
	if err != nil {
		view.Errors = append(view.Errors, "Stroke type must be Ischemic or Embolic.")
	}
	view.StrokeType = st.String()

	adv, err := d.advisor.ForModel(c.PostForm("model"))
	if err != nil {
		view.Errors = append(view.Errors, "Model must be one of "+strings.Join(view.Models, ", ")+".")
	} else {
		view.Model = adv.Model()
	}

	if len(view.Errors) > 0 {
		c.HTML(http.StatusUnprocessableEntity, "index.html", view)
		return
	}

	f := score.PatientRiskFactors{
		Age:             age,
		Female:          female,
		CHF:             view.CHF,
		Hypertension:    view.Hypertension,
		StrokeOrTIA:     view.StrokeOrTIA,
		VascularDisease: view.VascularDisease,
		Diabetes:        view.Diabetes,
	}
	n := d.compute(c.Request.Context(), f, "form")
	view.Scored = true
	view.Label = score.FormatScore(n)
	view.Breakdown = score.Breakdown(f)

	switch c.PostForm("action") {
	case "recommend":
		rec := d.recommend(c.Request.Context(), adv, n, female)
		view.Recommendation = &rec
	case "risk":
		ans, err := d.askRisk(c.Request.Context(), adv, n, st)
		if err != nil {
			view.Errors = append(view.Errors, err.Error())
		} else {
			view.RiskAnswer = &ans
		}
	}

	c.HTML(http.StatusOK, "index.html", view)
}

// checked reads a checkbox. Browsers send "on" for a checked box and nothing
// for an unchecked one; boolean literals are accepted too.
func checked(c *gin.Context, name string) (bool, error) {
	v := strings.TrimSpace(c.PostForm(name))
	switch strings.ToLower(v) {
	case "":
		return false, nil
	case "on":
		return true, nil
	}
	return strconv.ParseBool(v)
}
