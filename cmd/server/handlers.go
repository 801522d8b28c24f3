package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Skufu/chadsvasc/internal/advisor"
	"github.com/Skufu/chadsvasc/internal/risktable"
	"github.com/Skufu/chadsvasc/internal/score"
	"github.com/Skufu/chadsvasc/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func init() {
	// Report request field names, not Go field names, in validation errors.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	}
}

// ScoreRequest carries the seven risk factors. Age is required; absent
// booleans are false.
type ScoreRequest struct {
	Age             *int `form:"age" json:"age" binding:"required,min=0"`
	Female          bool `form:"female" json:"female"`
	CHF             bool `form:"chf" json:"chf"`
	Hypertension    bool `form:"hypertension" json:"hypertension"`
	StrokeOrTIA     bool `form:"stroke_tia" json:"stroke_tia"`
	VascularDisease bool `form:"vascular_disease" json:"vascular_disease"`
	Diabetes        bool `form:"diabetes" json:"diabetes"`
}

func (r ScoreRequest) Factors() score.PatientRiskFactors {
	return score.PatientRiskFactors{
		Age:             *r.Age,
		Female:          r.Female,
		CHF:             r.CHF,
		Hypertension:    r.Hypertension,
		StrokeOrTIA:     r.StrokeOrTIA,
		VascularDisease: r.VascularDisease,
		Diabetes:        r.Diabetes,
	}
}

// RecommendationRequest is a ScoreRequest plus an optional model override.
type RecommendationRequest struct {
	ScoreRequest
	Model string `form:"model" json:"model"`
}

type ScoreResponse struct {
	Score     int                  `json:"score"`
	Label     string               `json:"label"`
	MaxScore  int                  `json:"max_score"`
	Sex       string               `json:"sex"`
	Breakdown []score.Contribution `json:"breakdown"`
}

type RecommendationResponse struct {
	Score           int    `json:"score"`
	Sex             string `json:"sex"`
	Recommendation  string `json:"recommendation"`
	Source          string `json:"source"`
	Model           string `json:"model,omitempty"`
	Cached          bool   `json:"cached"`
	TemplateVersion string `json:"template_version"`
	AdvisorError    string `json:"advisor_error,omitempty"`
}

type RiskRequest struct {
	Score      *int   `form:"score" json:"score" binding:"required,min=0,max=9"`
	StrokeType string `form:"stroke_type" json:"stroke_type"`
	Model      string `form:"model" json:"model"`
}

type RiskResponse struct {
	Score       int    `json:"score"`
	StrokeType  string `json:"stroke_type"`
	Column      string `json:"column"`
	RiskPercent string `json:"risk_percent"`
}

type RiskAnswerResponse struct {
	Score        int    `json:"score"`
	StrokeType   string `json:"stroke_type"`
	Answer       string `json:"answer"`
	Source       string `json:"source"`
	Model        string `json:"model,omitempty"`
	Cached       bool   `json:"cached"`
	AdvisorError string `json:"advisor_error,omitempty"`
}

func (d *dependencies) scoreQuery(c *gin.Context) {
	if rejectBlank(c, "age") {
		return
	}
	var req ScoreRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondValidation(c, err)
		return
	}
	d.respondScore(c, req.Factors(), "api")
}

func (d *dependencies) scoreBody(c *gin.Context) {
	if rejectBlank(c, "age") {
		return
	}
	var req ScoreRequest
	if err := c.ShouldBind(&req); err != nil {
		respondValidation(c, err)
		return
	}
	d.respondScore(c, req.Factors(), "api")
}

func (d *dependencies) respondScore(c *gin.Context, f score.PatientRiskFactors, source string) {
	if err := score.Validate(f); err != nil {
		respondValidation(c, err)
		return
	}
	n := d.compute(c.Request.Context(), f, source)

	if wantsText(c) {
		c.String(http.StatusOK, score.FormatScore(n))
		return
	}
	c.JSON(http.StatusOK, ScoreResponse{
		Score:     n,
		Label:     score.FormatScore(n),
		MaxScore:  score.MaxScore,
		Sex:       score.SexLabel(f.Female),
		Breakdown: score.Breakdown(f),
	})
}

// compute scores validated factors, then records the result. Recording never
// affects the returned score.
func (d *dependencies) compute(ctx context.Context, f score.PatientRiskFactors, source string) int {
	n := score.Compute(f)
	d.metrics.ObserveScore(source, n)

	if d.repo != nil {
		if err := d.repo.Save(ctx, store.NewAssessment(f, n, source)); err != nil {
			d.logger.Warn("failed to record assessment", zap.Error(err))
		}
	}
	return n
}

func (d *dependencies) recommendation(c *gin.Context) {
	if rejectBlank(c, "age") {
		return
	}
	var req RecommendationRequest
	if err := c.ShouldBind(&req); err != nil {
		respondValidation(c, err)
		return
	}
	f := req.Factors()
	if err := score.Validate(f); err != nil {
		respondValidation(c, err)
		return
	}
	adv, err := d.advisor.ForModel(req.Model)
	if err != nil {
		respondValidation(c, err)
		return
	}
	n := d.compute(c.Request.Context(), f, "recommendation")
	c.JSON(http.StatusOK, d.recommend(c.Request.Context(), adv, n, f.Female))
}

// recommend asks adv and falls back to the guideline sentence when it is
// unconfigured or fails.
func (d *dependencies) recommend(ctx context.Context, adv *advisor.Advisor, n int, female bool) RecommendationResponse {
	sex := score.SexLabel(female)
	resp := RecommendationResponse{
		Score:           n,
		Sex:             sex,
		TemplateVersion: advisor.TemplateVersion,
	}

	ctx, cancel := context.WithTimeout(ctx, d.advisorTimeout)
	defer cancel()

	ans, err := adv.Recommend(ctx, n, sex)
	switch {
	case err == nil:
		d.metrics.ObserveAdvisor("recommendation", outcome(ans))
		resp.Recommendation = ans.Text
		resp.Source = ans.Source
		resp.Model = ans.Model
		resp.Cached = ans.Cached
		return resp
	case errors.Is(err, advisor.ErrNotConfigured):
		d.metrics.ObserveAdvisor("recommendation", "disabled")
	default:
		d.metrics.ObserveAdvisor("recommendation", "error")
		d.logger.Warn("recommendation failed, using guideline fallback", zap.Int("score", n), zap.Error(err))
		resp.AdvisorError = err.Error()
	}

	resp.Recommendation = advisor.GuidelineRecommendation(n, female)
	resp.Source = advisor.SourceGuideline
	return resp
}

func (d *dependencies) riskLookup(c *gin.Context) {
	if rejectBlank(c, "score") {
		return
	}
	var req RiskRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondValidation(c, err)
		return
	}
	st, err := risktable.ParseStrokeType(req.StrokeType)
	if err != nil {
		respondValidation(c, err)
		return
	}

	risk, err := d.table.Lookup(*req.Score, st)
	if err != nil {
		respondValidation(c, err)
		return
	}
	c.JSON(http.StatusOK, RiskResponse{
		Score:       *req.Score,
		StrokeType:  st.String(),
		Column:      st.Column(),
		RiskPercent: risk.StringFixed(1),
	})
}

func (d *dependencies) riskAsk(c *gin.Context) {
	if rejectBlank(c, "score") {
		return
	}
	var req RiskRequest
	if err := c.ShouldBind(&req); err != nil {
		respondValidation(c, err)
		return
	}
	st, err := risktable.ParseStrokeType(req.StrokeType)
	if err != nil {
		respondValidation(c, err)
		return
	}
	adv, err := d.advisor.ForModel(req.Model)
	if err != nil {
		respondValidation(c, err)
		return
	}

	resp, err := d.askRisk(c.Request.Context(), adv, *req.Score, st)
	if err != nil {
		respondValidation(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// askRisk answers "what is the risk of <type> stroke for score n" with the
// model when available and the table otherwise. It only fails for a score
// the table does not cover.
func (d *dependencies) askRisk(ctx context.Context, adv *advisor.Advisor, n int, st risktable.StrokeType) (RiskAnswerResponse, error) {
	lookup, err := advisor.LookupAnswer(d.table, n, st)
	if err != nil {
		return RiskAnswerResponse{}, err
	}
	resp := RiskAnswerResponse{Score: n, StrokeType: st.String()}
	prefix := st.String() + " Risk: "

	ctx, cancel := context.WithTimeout(ctx, d.advisorTimeout)
	defer cancel()

	ans, err := adv.AskRisk(ctx, n, st)
	switch {
	case err == nil:
		d.metrics.ObserveAdvisor("risk", outcome(ans))
		resp.Answer = prefix + ans.Text
		resp.Source = ans.Source
		resp.Model = ans.Model
		resp.Cached = ans.Cached
		return resp, nil
	case errors.Is(err, advisor.ErrNotConfigured):
		d.metrics.ObserveAdvisor("risk", "disabled")
	default:
		d.metrics.ObserveAdvisor("risk", "error")
		d.logger.Warn("risk question failed, using table lookup", zap.Int("score", n), zap.Error(err))
		resp.AdvisorError = err.Error()
	}

	resp.Answer = prefix + lookup
	resp.Source = advisor.SourceTable
	return resp, nil
}

func (d *dependencies) riskTable(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rows":     d.table.Rows(),
		"citation": risktable.Citation,
	})
}

func (d *dependencies) riskTableXLSX(c *gin.Context) {
	var buf bytes.Buffer
	if err := d.table.WriteXLSX(&buf); err != nil {
		d.logger.Error("risk table export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="cha2ds2-vasc-stroke-risk.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (d *dependencies) recentAssessments(c *gin.Context) {
	if d.repo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "assessment log disabled"})
		return
	}

	var q struct {
		Limit int `form:"limit" binding:"omitempty,min=1"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		respondValidation(c, err)
		return
	}

	items, err := d.repo.Recent(c.Request.Context(), q.Limit)
	if err != nil {
		d.logger.Error("list assessments failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "assessment log unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessments": items, "count": len(items)})
}

// rejectBlank answers 400 when a required field is sent with an empty value.
// Form binding would otherwise decode it as zero.
func rejectBlank(c *gin.Context, names ...string) bool {
	var details []string
	for _, name := range names {
		for _, get := range []func(string) (string, bool){c.GetQuery, c.GetPostForm} {
			if v, ok := get(name); ok && strings.TrimSpace(v) == "" {
				details = append(details, fmt.Sprintf("%s must not be empty", name))
				break
			}
		}
	}
	if len(details) == 0 {
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_failed",
		"details": details,
	})
	return true
}

func respondValidation(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_failed",
		"details": validationDetails(err),
	})
}

func validationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			details = append(details, fmt.Sprintf("%s is required", fe.Field()))
		case "min":
			details = append(details, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "max":
			details = append(details, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		default:
			details = append(details, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return details
}

func wantsText(c *gin.Context) bool {
	if strings.EqualFold(c.Query("format"), "text") {
		return true
	}
	accept := c.GetHeader("Accept")
	return strings.HasPrefix(accept, "text/plain")
}

func outcome(ans advisor.Answer) string {
	if ans.Cached {
		return "cached"
	}
	return "ok"
}
