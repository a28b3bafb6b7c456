package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/teeline/authcore"
	"github.com/teeline/authcore/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

type instrumentKind int

const (
	kindCounter instrumentKind = iota
	kindGauge
)

// reading is what one collection reports for an instrument.
type reading struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

type point struct {
	value int64
	attrs metric.ObserveOption
}

// binding ties one instrument to the values it reports.
type binding struct {
	name    string
	help    string
	kind    instrumentKind
	observe func(reading) []point
}

// bucketLabels are the le attribute of each cumulative bucket, +Inf last.
func bucketLabels() []metric.ObserveOption {
	labels := make([]metric.ObserveOption, internaldefs.BucketCount)
	for i := range labels {
		le := "+Inf"
		if i < len(internaldefs.HistogramBounds) {
			le = strconv.FormatFloat(internaldefs.HistogramBounds[i], 'g', -1, 64)
		}
		labels[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
	}
	return labels
}

// bindings derives every instrument from the shared definition tables.
// Counters map one to one. A histogram becomes a _bucket gauge with one
// point per le label plus a _count gauge.
func bindings() []binding {
	out := make([]binding, 0, len(internaldefs.CounterDefs)+2*len(internaldefs.HistogramDefs)+1)
	for _, def := range internaldefs.CounterDefs {
		id := def.ID
		out = append(out, binding{def.Name, def.Help, kindCounter, func(r reading) []point {
			return []point{{value: int64(r.snapshot.Counters[id])}}
		}})
	}

	labels := bucketLabels()
	for _, def := range internaldefs.HistogramDefs {
		id := def.ID
		cumulative := func(r reading) ([internaldefs.BucketCount]uint64, bool) {
			raw, ok := r.snapshot.Histograms[id]
			return internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw)), ok
		}
		out = append(out,
			binding{def.Name + "_bucket", def.Help + " Cumulative count per upper bound.", kindGauge, func(r reading) []point {
				buckets, ok := cumulative(r)
				if !ok {
					return nil
				}
				points := make([]point, len(buckets))
				for i, n := range buckets {
					points[i] = point{value: int64(n), attrs: labels[i]}
				}
				return points
			}},
			binding{def.Name + "_count", def.Help + " Total samples.", kindGauge, func(r reading) []point {
				buckets, ok := cumulative(r)
				if !ok {
					return nil
				}
				return []point{{value: int64(buckets[len(buckets)-1])}}
			}},
		)
	}

	return append(out, binding{internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, kindCounter, func(r reading) []point {
		return []point{{value: int64(r.dropped)}}
	}})
}

// Exporter publishes engine metrics through observable OpenTelemetry
// instruments read by a single callback.
type Exporter struct {
	registration metric.Registration
}

// NewExporter registers instruments on meter that read from engine on every
// collection.
func NewExporter(meter metric.Meter, engine *authcore.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	defs := bindings()
	instruments := make([]metric.Int64Observable, len(defs))
	observables := make([]metric.Observable, len(defs))
	for i, b := range defs {
		var (
			ins metric.Int64Observable
			err error
		)
		switch b.kind {
		case kindCounter:
			ins, err = meter.Int64ObservableCounter(b.name, metric.WithDescription(b.help))
		default:
			ins, err = meter.Int64ObservableGauge(b.name, metric.WithDescription(b.help))
		}
		if err != nil {
			return nil, fmt.Errorf("create instrument %s: %w", b.name, err)
		}
		instruments[i] = ins
		observables[i] = ins
	}

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		r := reading{snapshot: source.MetricsSnapshot(), dropped: source.AuditDropped()}
		for i, b := range defs {
			for _, p := range b.observe(r) {
				if p.attrs == nil {
					observer.ObserveInt64(instruments[i], p.value)
					continue
				}
				observer.ObserveInt64(instruments[i], p.value, p.attrs)
			}
		}
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return &Exporter{registration: registration}, nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
