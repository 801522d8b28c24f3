// Package risktable holds the published annual stroke-risk figures for each
// CHA₂DS₂-VASc score and answers lookups against them.
package risktable

import (
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Citation is the source of the embedded figures.
const Citation = "Friberg L, Rosenqvist M, Lip GY. Evaluation of risk stratification schemes for ischaemic stroke and bleeding in 182 678 patients with atrial fibrillation: the Swedish Atrial Fibrillation cohort study. Eur Heart J. 2012 Jun;33(12):1500-10. doi: 10.1093/eurheartj/ehr488. PMID: 22246443."

const (
	ScoreColumn    = "CHA2DS2-VASc Score"
	IschemicColumn = "Risk of ischemic stroke"
	EmbolicColumn  = "Risk of stroke/TIA/systemic embolism"
)

var (
	ErrScoreNotFound     = errors.New("score not in risk table")
	ErrUnknownStrokeType = errors.New("stroke type must be Ischemic or Embolic")
)

//go:embed data.csv
var defaultCSV string

// StrokeType selects one of the two outcome columns.
type StrokeType int

const (
	Ischemic StrokeType = iota
	Embolic
)

func (t StrokeType) String() string {
	if t == Embolic {
		return "Embolic"
	}
	return "Ischemic"
}

// Column is the table header the stroke type reads from.
func (t StrokeType) Column() string {
	if t == Embolic {
		return EmbolicColumn
	}
	return IschemicColumn
}

func ParseStrokeType(s string) (StrokeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ischemic", "ischaemic", "":
		return Ischemic, nil
	case "embolic", "embolism":
		return Embolic, nil
	default:
		return Ischemic, fmt.Errorf("%w: %q", ErrUnknownStrokeType, s)
	}
}

// Row is one line of the table. Risks are annual percentages.
type Row struct {
	Score    int             `json:"score"`
	Ischemic decimal.Decimal `json:"ischemic_stroke_percent"`
	Embolic  decimal.Decimal `json:"stroke_tia_embolism_percent"`
}

// Risk returns the percentage for the given stroke type.
func (r Row) Risk(t StrokeType) decimal.Decimal {
	if t == Embolic {
		return r.Embolic
	}
	return r.Ischemic
}

// Table is an immutable score-indexed set of rows, safe for concurrent reads.
type Table struct {
	rows    []Row
	byScore map[int]Row
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the embedded table. It panics if the embedded CSV is
// malformed, which the package tests guard against.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(strings.NewReader(defaultCSV))
		if err != nil {
			panic(fmt.Sprintf("risktable: embedded data: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Parse reads a three-column CSV with a header row.
func Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, errors.New("risk table has no data rows")
	}

	t := &Table{byScore: make(map[int]Row, len(records)-1)}
	for i, rec := range records[1:] {
		line := i + 2
		s, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid score %q: %w", line, rec[0], err)
		}
		if _, dup := t.byScore[s]; dup {
			return nil, fmt.Errorf("line %d: duplicate score %d", line, s)
		}
		ischemic, err := parsePercent(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, IschemicColumn, err)
		}
		embolic, err := parsePercent(rec[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, EmbolicColumn, err)
		}
		row := Row{Score: s, Ischemic: ischemic, Embolic: embolic}
		t.rows = append(t.rows, row)
		t.byScore[s] = row
	}

	sort.Slice(t.rows, func(i, j int) bool { return t.rows[i].Score < t.rows[j].Score })
	return t, nil
}

func parsePercent(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(s), "%"))
}

// Lookup returns the annual risk percentage for a score.
func (t *Table) Lookup(score int, st StrokeType) (decimal.Decimal, error) {
	row, ok := t.byScore[score]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrScoreNotFound, score)
	}
	return row.Risk(st), nil
}

// Rows returns a copy of the rows ordered by score.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// CSV renders the table in its source format.
func (t *Table) CSV() string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write([]string{ScoreColumn, IschemicColumn, EmbolicColumn})
	for _, r := range t.rows {
		_ = w.Write([]string{strconv.Itoa(r.Score), r.Ischemic.String(), r.Embolic.String()})
	}
	w.Flush()
	return b.String()
}
