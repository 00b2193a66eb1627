// Package testutil provides scripted sources, recording sinks and canned
// record data for grepbag tests. No external services required.
package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/c360/grepbag/component"
	"github.com/c360/grepbag/message"
)

// ScriptedSource implements component.Source over a fixed record slice.
// Thread-safe for concurrent use, though the scan loop drives it from one
// goroutine.
type ScriptedSource struct {
	mu sync.Mutex

	records []message.Record
	pos     int
	stopped bool

	// ErrAt injects a read error in place of the record at the given
	// index. The source skips past the index afterwards, so later records
	// still arrive.
	ErrAt map[int]error

	// Total is what EstimatedTotal reports. Defaults to len(records);
	// set to -1 to act like a live source.
	Total int

	// EarlyStop is what SupportsEarlyStop reports. Defaults to true.
	EarlyStop bool

	// Call counts for verification
	NextCalls int
	StopCalls int
}

// NewScriptedSource creates a source that delivers the given records in order.
func NewScriptedSource(records ...message.Record) *ScriptedSource {
	return &ScriptedSource{
		records:   records,
		Total:     len(records),
		EarlyStop: true,
	}
}

// Next returns the next scripted record, an injected error, or io.EOF.
func (s *ScriptedSource) Next(ctx context.Context) (message.Record, error) {
	if err := ctx.Err(); err != nil {
		return message.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.NextCalls++
	if s.stopped || s.pos >= len(s.records) {
		return message.Record{}, io.EOF
	}
	if err, ok := s.ErrAt[s.pos]; ok {
		s.pos++
		return message.Record{}, err
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}

// EstimatedTotal reports the configured total.
func (s *ScriptedSource) EstimatedTotal() int {
	return s.Total
}

// SupportsEarlyStop reports the configured early-stop capability.
func (s *ScriptedSource) SupportsEarlyStop() bool {
	return s.EarlyStop
}

// Stop marks the source exhausted.
func (s *ScriptedSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.StopCalls++
	s.stopped = true
	return nil
}

// Remaining returns how many scripted records have not been delivered yet.
func (s *ScriptedSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records) - s.pos
}

// SinkWrite is one recorded Write call.
type SinkWrite struct {
	Record message.Record
	Meta   component.WriteMeta
}

// MemorySink implements component.Sink and records everything written to it.
// Thread-safe for concurrent use.
type MemorySink struct {
	mu sync.Mutex

	writes []SinkWrite

	// Error injection. A non-nil func runs before the call is recorded;
	// returning an error makes the call fail without recording.
	WriteFunc func(rec message.Record, meta component.WriteMeta) error
	FlushFunc func() error
	CloseFunc func() error

	// Call counts for verification
	WriteCalls int
	FlushCalls int
	CloseCalls int
}

// NewMemorySink creates an empty recording sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write records the call unless WriteFunc rejects it.
func (m *MemorySink) Write(rec message.Record, meta component.WriteMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCalls++
	if m.WriteFunc != nil {
		if err := m.WriteFunc(rec, meta); err != nil {
			return err
		}
	}
	m.writes = append(m.writes, SinkWrite{Record: rec, Meta: meta})
	return nil
}

// Flush counts the call and runs FlushFunc if set.
func (m *MemorySink) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FlushCalls++
	if m.FlushFunc != nil {
		return m.FlushFunc()
	}
	return nil
}

// Close counts the call and runs CloseFunc if set.
func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CloseCalls++
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Writes returns a copy of all recorded writes.
func (m *MemorySink) Writes() []SinkWrite {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]SinkWrite, len(m.writes))
	copy(result, m.writes)
	return result
}

// Records returns just the written records, in write order.
func (m *MemorySink) Records() []message.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]message.Record, 0, len(m.writes))
	for _, w := range m.writes {
		result = append(result, w.Record)
	}
	return result
}

// Topics returns the topic of each written record, in write order.
func (m *MemorySink) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]string, 0, len(m.writes))
	for _, w := range m.writes {
		result = append(result, w.Record.Topic)
	}
	return result
}

// Clear drops all recorded writes and resets counters.
func (m *MemorySink) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes = nil
	m.WriteCalls = 0
	m.FlushCalls = 0
	m.CloseCalls = 0
}
