package helper

import (
	"context"
	"sync"

	"github.com/fadendb/faden-go/livestore"
)

// Ensure TracingCollectorSpy implements livestore.TracingCollector
var _ livestore.TracingCollector = (*TracingCollectorSpy)(nil)

// SpySpanContext is a test double implementing livestore.SpanContext.
type SpySpanContext struct {
	status     string
	attributes map[string]string
	mu         sync.Mutex
}

// NewSpySpanContext creates a new SpySpanContext.
func NewSpySpanContext() *SpySpanContext {
	return &SpySpanContext{
		attributes: make(map[string]string),
	}
}

// SetStatus implements livestore.SpanContext interface.
func (s *SpySpanContext) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// AddAttribute implements livestore.SpanContext interface.
func (s *SpySpanContext) AddAttribute(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributes[key] = value
}

// GetStatus returns the status set on this span context.
func (s *SpySpanContext) GetStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// GetAttributes returns a copy of the attributes added to this span context.
func (s *SpySpanContext) GetAttributes() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyLabels(s.attributes)
}

// SpySpanRecord represents a captured span with its lifecycle data.
type SpySpanRecord struct {
	Name            string
	StartAttributes map[string]string
	Status          string
	EndAttributes   map[string]string
	SpanContext     *SpySpanContext
	Finished        bool
}

// TracingCollectorSpy is a test double that captures tracing calls for verification.
type TracingCollectorSpy struct {
	mu          sync.Mutex
	spanRecords []SpySpanRecord
	recordCalls bool
}

// NewTracingCollectorSpy creates a new TracingCollectorSpy.
func NewTracingCollectorSpy(recordCalls bool) *TracingCollectorSpy {
	return &TracingCollectorSpy{
		spanRecords: make([]SpySpanRecord, 0),
		recordCalls: recordCalls,
	}
}

// StartSpan implements livestore.TracingCollector interface.
func (s *TracingCollectorSpy) StartSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, livestore.SpanContext) {

	spanCtx := NewSpySpanContext()

	if !s.recordCalls {
		return ctx, spanCtx
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.spanRecords = append(s.spanRecords, SpySpanRecord{
		Name:            name,
		StartAttributes: copyLabels(attrs),
		SpanContext:     spanCtx,
	})

	return ctx, spanCtx
}

// FinishSpan implements livestore.TracingCollector interface.
func (s *TracingCollectorSpy) FinishSpan(spanCtx livestore.SpanContext, status string, attrs map[string]string) {
	if !s.recordCalls {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Match the finished span by context identity
	for i := range s.spanRecords {
		if s.spanRecords[i].SpanContext == spanCtx {
			s.spanRecords[i].Status = status
			s.spanRecords[i].EndAttributes = copyLabels(attrs)
			s.spanRecords[i].Finished = true

			return
		}
	}
}

// GetSpanRecordCount returns the number of captured span records.
func (s *TracingCollectorSpy) GetSpanRecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.spanRecords)
}

// GetSpanRecords returns a copy of all captured span records.
func (s *TracingCollectorSpy) GetSpanRecords() []SpySpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]SpySpanRecord, len(s.spanRecords))
	copy(records, s.spanRecords)

	return records
}

// Reset clears all captured span records.
func (s *TracingCollectorSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spanRecords = s.spanRecords[:0]
}

// CountSpanRecordsForName returns how many span records exist for the given span name.
func (s *TracingCollectorSpy) CountSpanRecordsForName(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, record := range s.spanRecords {
		if record.Name == name {
			count++
		}
	}

	return count
}

// SpanRecordMatcher provides a fluent interface for checking span record attributes.
type SpanRecordMatcher struct {
	records []SpySpanRecord
	found   bool
}

// HasSpanRecordForName starts a fluent chain over all span records with the given name.
func (s *TracingCollectorSpy) HasSpanRecordForName(name string) *SpanRecordMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	matcher := &SpanRecordMatcher{}
	for _, record := range s.spanRecords {
		if record.Name == name {
			matcher.records = append(matcher.records, record)
			matcher.found = true
		}
	}

	return matcher
}

// WithStatus narrows the match to spans finished with the given status.
func (m *SpanRecordMatcher) WithStatus(status string) *SpanRecordMatcher {
	if !m.found {
		return m
	}

	var remaining []SpySpanRecord
	for _, record := range m.records {
		if record.Finished && record.Status == status {
			remaining = append(remaining, record)
		}
	}

	m.records = remaining
	m.found = len(remaining) > 0

	return m
}

// WithStartAttribute narrows the match to spans started with the given attribute.
func (m *SpanRecordMatcher) WithStartAttribute(key string, value string) *SpanRecordMatcher {
	if !m.found {
		return m
	}

	var remaining []SpySpanRecord
	for _, record := range m.records {
		if record.StartAttributes[key] == value {
			remaining = append(remaining, record)
		}
	}

	m.records = remaining
	m.found = len(remaining) > 0

	return m
}

// WithEndAttribute narrows the match to spans finished with the given attribute.
func (m *SpanRecordMatcher) WithEndAttribute(key string, value string) *SpanRecordMatcher {
	if !m.found {
		return m
	}

	var remaining []SpySpanRecord
	for _, record := range m.records {
		if record.Finished && record.EndAttributes[key] == value {
			remaining = append(remaining, record)
		}
	}

	m.records = remaining
	m.found = len(remaining) > 0

	return m
}

// WithSpanAttribute narrows the match to spans whose context carries the given attribute.
func (m *SpanRecordMatcher) WithSpanAttribute(key string, value string) *SpanRecordMatcher {
	if !m.found {
		return m
	}

	var remaining []SpySpanRecord
	for _, record := range m.records {
		if record.SpanContext != nil && record.SpanContext.GetAttributes()[key] == value {
			remaining = append(remaining, record)
		}
	}

	m.records = remaining
	m.found = len(remaining) > 0

	return m
}

// Assert returns true if at least one span record matched all conditions in the fluent chain.
func (m *SpanRecordMatcher) Assert() bool {
	return m.found
}
