package helper

import (
	"context"
	"sync"

	"github.com/fadendb/faden-go/livestore"
)

// Ensure ContextualLoggerSpy implements livestore.ContextualLogger
var _ livestore.ContextualLogger = (*ContextualLoggerSpy)(nil)

// ContextualLogRecord represents a captured context-aware log call.
type ContextualLogRecord struct {
	Level   string
	Message string
	Args    []any
	Context context.Context
}

// ContextualLoggerSpy is a test double that captures context-aware log calls for verification.
type ContextualLoggerSpy struct {
	mu           sync.Mutex
	debugRecords []ContextualLogRecord
	infoRecords  []ContextualLogRecord
	warnRecords  []ContextualLogRecord
	errorRecords []ContextualLogRecord
	recordCalls  bool
}

// NewContextualLoggerSpy creates a new ContextualLoggerSpy.
func NewContextualLoggerSpy(recordCalls bool) *ContextualLoggerSpy {
	return &ContextualLoggerSpy{
		debugRecords: make([]ContextualLogRecord, 0),
		infoRecords:  make([]ContextualLogRecord, 0),
		warnRecords:  make([]ContextualLogRecord, 0),
		errorRecords: make([]ContextualLogRecord, 0),
		recordCalls:  recordCalls,
	}
}

// DebugContext implements livestore.ContextualLogger interface.
func (s *ContextualLoggerSpy) DebugContext(ctx context.Context, msg string, args ...any) {
	if !s.recordCalls {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugRecords = append(s.debugRecords, ContextualLogRecord{
		Level:   "debug",
		Message: msg,
		Args:    args,
		Context: ctx,
	})
}

// InfoContext implements livestore.ContextualLogger interface.
func (s *ContextualLoggerSpy) InfoContext(ctx context.Context, msg string, args ...any) {
	if !s.recordCalls {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.infoRecords = append(s.infoRecords, ContextualLogRecord{
		Level:   "info",
		Message: msg,
		Args:    args,
		Context: ctx,
	})
}

// WarnContext implements livestore.ContextualLogger interface.
func (s *ContextualLoggerSpy) WarnContext(ctx context.Context, msg string, args ...any) {
	if !s.recordCalls {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnRecords = append(s.warnRecords, ContextualLogRecord{
		Level:   "warn",
		Message: msg,
		Args:    args,
		Context: ctx,
	})
}

// ErrorContext implements livestore.ContextualLogger interface.
func (s *ContextualLoggerSpy) ErrorContext(ctx context.Context, msg string, args ...any) {
	if !s.recordCalls {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorRecords = append(s.errorRecords, ContextualLogRecord{
		Level:   "error",
		Message: msg,
		Args:    args,
		Context: ctx,
	})
}

// GetDebugRecords returns a copy of all captured debug-level records.
func (s *ContextualLoggerSpy) GetDebugRecords() []ContextualLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]ContextualLogRecord, len(s.debugRecords))
	copy(records, s.debugRecords)

	return records
}

// GetInfoRecords returns a copy of all captured info-level records.
func (s *ContextualLoggerSpy) GetInfoRecords() []ContextualLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]ContextualLogRecord, len(s.infoRecords))
	copy(records, s.infoRecords)

	return records
}

// GetWarnRecords returns a copy of all captured warn-level records.
func (s *ContextualLoggerSpy) GetWarnRecords() []ContextualLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]ContextualLogRecord, len(s.warnRecords))
	copy(records, s.warnRecords)

	return records
}

// GetErrorRecords returns a copy of all captured error-level records.
func (s *ContextualLoggerSpy) GetErrorRecords() []ContextualLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]ContextualLogRecord, len(s.errorRecords))
	copy(records, s.errorRecords)

	return records
}

// GetTotalRecordCount returns the total number of captured records across all levels.
func (s *ContextualLoggerSpy) GetTotalRecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.debugRecords) + len(s.infoRecords) + len(s.warnRecords) + len(s.errorRecords)
}

// Reset clears all captured records.
func (s *ContextualLoggerSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugRecords = s.debugRecords[:0]
	s.infoRecords = s.infoRecords[:0]
	s.warnRecords = s.warnRecords[:0]
	s.errorRecords = s.errorRecords[:0]
}

// HasDebugLog checks if there's a debug-level record with the specified message.
func (s *ContextualLoggerSpy) HasDebugLog(message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return hasRecordWithMessage(s.debugRecords, message)
}

// HasInfoLog checks if there's an info-level record with the specified message.
func (s *ContextualLoggerSpy) HasInfoLog(message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return hasRecordWithMessage(s.infoRecords, message)
}

// HasWarnLog checks if there's a warn-level record with the specified message.
func (s *ContextualLoggerSpy) HasWarnLog(message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return hasRecordWithMessage(s.warnRecords, message)
}

// HasErrorLog checks if there's an error-level record with the specified message.
func (s *ContextualLoggerSpy) HasErrorLog(message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return hasRecordWithMessage(s.errorRecords, message)
}

func hasRecordWithMessage(records []ContextualLogRecord, message string) bool {
	for _, record := range records {
		if record.Message == message {
			return true
		}
	}

	return false
}
