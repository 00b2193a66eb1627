package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360/grepbag/message"
)

// BaseStamp is the fixed starting time for generated record sequences.
var BaseStamp = time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

// Canned type names used by the record builders.
const (
	TypeStatus = "diag_msgs/Status"
	TypePose   = "nav_msgs/Pose2D"
)

// Rec builds a record with the schema hash inferred from the data shape, the
// same identity a live source would infer for it.
func Rec(topic, typeName string, stamp time.Time, data message.Value) message.Record {
	desc := message.InferDescriptor(typeName, data)
	return message.Record{
		Topic:      topic,
		Type:       typeName,
		SchemaHash: desc.SchemaHash,
		Stamp:      stamp,
		Data:       data,
	}
}

// StatusRecord builds a diagnostic status record with seq, level and text
// fields.
func StatusRecord(topic string, seq int, level, text string, stamp time.Time) message.Record {
	return Rec(topic, TypeStatus, stamp, message.Map(
		message.F("seq", message.Int(int64(seq))),
		message.F("level", message.Str(level)),
		message.F("text", message.Str(text)),
	))
}

// PoseRecord builds a planar pose record with x, y and theta fields.
func PoseRecord(topic string, x, y, theta float64, stamp time.Time) message.Record {
	return Rec(topic, TypePose, stamp, message.Map(
		message.F("x", message.Float(x)),
		message.F("y", message.Float(y)),
		message.F("theta", message.Float(theta)),
	))
}

// StatusSequence builds n status records on one topic starting at BaseStamp,
// one per step. Levels cycle INFO, WARN, ERROR; seq runs 1..n.
func StatusSequence(topic string, n int, step time.Duration) []message.Record {
	levels := []string{"INFO", "WARN", "ERROR"}
	records := make([]message.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, StatusRecord(
			topic,
			i+1,
			levels[i%len(levels)],
			"status update",
			BaseStamp.Add(time.Duration(i)*step),
		))
	}
	return records
}

// BagLines encodes records as bag file content: a schema envelope the first
// time each type variant appears, then one message envelope per record.
func BagLines(records ...message.Record) ([]byte, error) {
	var buf bytes.Buffer
	seen := make(map[message.TypeKey]bool)
	for _, rec := range records {
		key := rec.TypeKey()
		if !seen[key] {
			seen[key] = true
			desc := message.InferDescriptor(rec.Type, rec.Data)
			if rec.SchemaHash != "" {
				desc.SchemaHash = rec.SchemaHash
			}
			line, err := message.NewSchemaEnvelope(desc).Encode()
			if err != nil {
				return nil, err
			}
			buf.Write(line)
			buf.WriteByte('\n')
		}
		line, err := message.NewMessageEnvelope(rec).Encode()
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// WriteBagFile writes the records as a bag file under t.TempDir and returns
// its path.
func WriteBagFile(t testing.TB, records ...message.Record) string {
	t.Helper()

	content, err := BagLines(records...)
	if err != nil {
		t.Fatalf("encode bag content: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test.jsonl")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write bag file: %v", err)
	}
	return path
}
