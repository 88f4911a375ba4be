package calc

import "github.com/shopspring/decimal"

// Stage names a step in the calculation sequence.
type Stage string

// Line stages, in execution order.
const (
	StageUnitPriceExclusive Stage = "unit_price_exclusive"
	StageSubtotal           Stage = "subtotal"
	StageDiscount           Stage = "discount"
	StageTaxable            Stage = "taxable"
	StageTax                Stage = "tax"
	StageTotal              Stage = "total"
)

// Document stages, in execution order.
const (
	StageLinesSubtotal    Stage = "lines_subtotal"
	StageLinesDiscount    Stage = "lines_discount"
	StageLinesTax         Stage = "lines_tax"
	StageLinesTotal       Stage = "lines_total"
	StageDocumentDiscount Stage = "document_discount"
	StageGrandTotal       Stage = "grand_total"
)

// DocumentLine is the Line value used for document-level trace steps.
const DocumentLine = -1

// Step is one recorded intermediate value. Line is the zero-based line index,
// or DocumentLine for document-level steps. Values are recorded before any
// rounding other than the rounding the stage itself performs.
type Step struct {
	Line  int             `json:"line"`
	Stage Stage           `json:"stage"`
	Value decimal.Decimal `json:"value"`
}

// Trace is the ordered list of steps produced by CalculateWithTrace.
type Trace struct {
	Steps []Step `json:"steps"`
}

// ForLine returns the steps recorded for a line index.
func (t *Trace) ForLine(line int) []Step {
	if t == nil {
		return nil
	}
	var out []Step
	for _, s := range t.Steps {
		if s.Line == line {
			out = append(out, s)
		}
	}
	return out
}

// Value returns the recorded value for (line, stage).
func (t *Trace) Value(line int, stage Stage) (decimal.Decimal, bool) {
	if t == nil {
		return decimal.Zero, false
	}
	for _, s := range t.Steps {
		if s.Line == line && s.Stage == stage {
			return s.Value, true
		}
	}
	return decimal.Zero, false
}

// recorder observes intermediate values. Implementations must not influence
// the arithmetic.
type recorder interface {
	record(line int, stage Stage, value decimal.Decimal)
}

type nopRecorder struct{}

func (nopRecorder) record(int, Stage, decimal.Decimal) {}

type traceRecorder struct {
	trace *Trace
}

func (r *traceRecorder) record(line int, stage Stage, value decimal.Decimal) {
	r.trace.Steps = append(r.trace.Steps, Step{Line: line, Stage: stage, Value: value})
}
