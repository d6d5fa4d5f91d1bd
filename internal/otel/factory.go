package otel

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MetricFactory creates a package's instruments from the global meter.
// Instruments made before Init delegate to the provider it installs.
type MetricFactory struct {
	meter  metric.Meter
	prefix string
}

func NewFactory(meterName, prefix string) *MetricFactory {
	return &MetricFactory{
		meter:  otel.Meter(meterName),
		prefix: prefix,
	}
}

// name prefixes the metric name with the factory's prefix
func (f *MetricFactory) name(suffix string) string {
	if f.prefix == "" {
		return suffix
	}
	return f.prefix + "." + suffix
}

// create stores the instrument in target, panicking on a bad definition.
func create[T any, O any](f *MetricFactory, target *T, name string, build func(string, ...O) (T, error), options []O) {
	fullName := f.name(name)
	inst, err := build(fullName, options...)
	if err != nil {
		panic(fmt.Sprintf("failed to create metric %s: %v", fullName, err))
	}
	*target = inst
}

func (f *MetricFactory) Int64Counter(target *metric.Int64Counter, name string, options ...metric.Int64CounterOption) {
	create(f, target, name, f.meter.Int64Counter, options)
}

func (f *MetricFactory) Int64UpDownCounter(target *metric.Int64UpDownCounter, name string, options ...metric.Int64UpDownCounterOption) {
	create(f, target, name, f.meter.Int64UpDownCounter, options)
}

func (f *MetricFactory) Float64Histogram(target *metric.Float64Histogram, name string, options ...metric.Float64HistogramOption) {
	create(f, target, name, f.meter.Float64Histogram, options)
}
