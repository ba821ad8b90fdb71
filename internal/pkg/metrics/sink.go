package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the fire-and-forget recording surface handed to components that
// should not know about prometheus directly. Calls never block and never
// panic; a nil Sink is a silent no-op.
type Sink struct {
	service string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	registerer prometheus.Registerer
}

func NewSink(service string, reg prometheus.Registerer) *Sink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Sink{
		service:    service,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		registerer: reg,
	}
}

func (s *Sink) RecordCounter(name string, value float64, labels map[string]string) {
	if s == nil {
		return
	}
	defer func() { _ = recover() }()
	vec := s.counterVec(name, labelKeys(labels))
	if vec == nil {
		return
	}
	vec.With(labels).Add(value)
}

func (s *Sink) RecordGauge(name string, value float64, labels map[string]string) {
	if s == nil {
		return
	}
	defer func() { _ = recover() }()
	vec := s.gaugeVec(name, labelKeys(labels))
	if vec == nil {
		return
	}
	vec.With(labels).Set(value)
}

func (s *Sink) RecordHistogram(name string, value float64, labels map[string]string) {
	if s == nil {
		return
	}
	defer func() { _ = recover() }()
	vec := s.histogramVec(name, labelKeys(labels))
	if vec == nil {
		return
	}
	vec.With(labels).Observe(value)
}

func (s *Sink) counterVec(name string, keys []string) *prometheus.CounterVec {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vec, ok := s.counters[name]; ok {
		return vec
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: s.service,
		Name:      name,
	}, keys)
	if err := s.registerer.Register(vec); err != nil {
		return nil
	}
	s.counters[name] = vec
	return vec
}

func (s *Sink) gaugeVec(name string, keys []string) *prometheus.GaugeVec {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vec, ok := s.gauges[name]; ok {
		return vec
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: s.service,
		Name:      name,
	}, keys)
	if err := s.registerer.Register(vec); err != nil {
		return nil
	}
	s.gauges[name] = vec
	return vec
}

func (s *Sink) histogramVec(name string, keys []string) *prometheus.HistogramVec {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vec, ok := s.histograms[name]; ok {
		return vec
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: s.service,
		Name:      name,
		Buckets:   prometheus.DefBuckets,
	}, keys)
	if err := s.registerer.Register(vec); err != nil {
		return nil
	}
	s.histograms[name] = vec
	return vec
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	return keys
}
