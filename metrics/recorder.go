// Package metrics exports intake telemetry to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-transcript-intake/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder maps the dotted metric names used by core.Telemetry onto
// Prometheus vectors, created lazily per name and label set.
type Recorder struct {
	namespace  string
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	buckets    []float64

	mu       sync.Mutex
	families map[string]*family
}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitize(namespace)
	}
}

// WithRegistry registers collectors on registry instead of the default one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *Recorder) {
		if registry != nil {
			r.registerer = registry
			r.gatherer = registry
		}
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
		// 1ms to ~16s
		buckets:    prometheus.ExponentialBuckets(1, 2, 15),
		families:   map[string]*family{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	f := r.family(name, tags, r.newCounter)
	if f == nil || f.counter == nil {
		return
	}
	f.counter.With(f.project(tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	f := r.family(name, tags, r.newHistogram)
	if f == nil || f.histogram == nil {
		return
	}
	f.histogram.With(f.project(tags)).Observe(value)
}

// Handler serves the registry this recorder writes to.
func (r *Recorder) Handler() http.Handler {
	if r == nil || r.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// family is one registered vector. Its label names are fixed by the first
// observation; later tags are projected onto them.
type family struct {
	labels    []string
	counter   *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

func (f *family) project(tags map[string]string) prometheus.Labels {
	normalized := make(map[string]string, len(tags))
	for key, value := range tags {
		normalized[sanitize(key)] = value
	}
	labels := make(prometheus.Labels, len(f.labels))
	for _, name := range f.labels {
		labels[name] = normalized[name]
	}
	return labels
}

func (r *Recorder) family(name string, tags map[string]string, build func(string, string, []string) (*family, error)) *family {
	metricName := r.metricName(name)
	if metricName == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.families[metricName]; ok {
		return existing
	}
	created, err := build(metricName, name, labelNames(tags))
	if err != nil {
		return nil
	}
	r.families[metricName] = created
	return created
}

func (r *Recorder) newCounter(metricName, source string, labels []string) (*family, error) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricName,
		Help: "Intake counter " + source,
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	return &family{labels: labels, counter: vec}, nil
}

func (r *Recorder) newHistogram(metricName, source string, labels []string) (*family, error) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricName,
		Help:    "Intake histogram " + source,
		Buckets: r.buckets,
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	return &family{labels: labels, histogram: vec}, nil
}

// metricName turns "intake.notification.total" into intake_notification_total.
func (r *Recorder) metricName(name string) string {
	metric := sanitize(name)
	if r.namespace != "" && !strings.HasPrefix(metric, r.namespace+"_") {
		metric = r.namespace + "_" + metric
	}
	return metric
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for key := range tags {
		names = append(names, sanitize(key))
	}
	sort.Strings(names)
	return names
}

func sanitize(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

var _ core.MetricsRecorder = (*Recorder)(nil)
