// Package observability provides the metrics sink, operation
// instrumentation and logger construction used across reckon.
//
// Components receive a MetricFactory at construction instead of reaching for
// process-wide registries; Nop() is the implementation used in tests.
package observability

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics. Asking twice for the same name must return
// the same underlying metric.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

type nopMetric struct{}

func (nopMetric) Inc()            {}
func (nopMetric) Add(float64)     {}
func (nopMetric) Observe(float64) {}

type nopFactory struct{}

func (nopFactory) Counter(string) Counter     { return nopMetric{} }
func (nopFactory) Histogram(string) Histogram { return nopMetric{} }

// Nop returns a MetricFactory whose metrics discard every observation.
func Nop() MetricFactory { return nopFactory{} }
