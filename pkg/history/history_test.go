package history

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	base := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	return func() time.Time { return base }
}

func TestDirection_String(t *testing.T) {
	tests := []struct {
		direction Direction
		want      string
	}{
		{DirectionInput, "input"},
		{DirectionOutput, "output"},
		{Direction(9), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.direction.String(); got != tt.want {
			t.Errorf("Direction(%d).String() = %q, want %q", tt.direction, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    FileFormat
		wantErr bool
	}{
		{"plain", FormatPlainText, false},
		{"timestamped", FormatTimestamped, false},
		{"JSON", FormatJSON, false},
		{"xml", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTranscript_Record(t *testing.T) {
	tr := NewTranscript(100)

	if err := tr.Record([]byte("e hi"), DirectionInput); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := tr.Writer(DirectionOutput).Write([]byte("hi\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := tr.Record([]byte("x"), Direction(5)); err == nil {
		t.Error("Record() with invalid direction should fail")
	}

	entries := tr.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(entries))
	}
	if entries[0].Data != "e hi" || entries[0].Direction != DirectionInput {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Data != "hi\n" || entries[1].Direction != DirectionOutput {
		t.Errorf("entry 1 = %+v", entries[1])
	}

	stats := tr.Stats()
	want := Stats{InputEntries: 1, OutputEntries: 1, InputBytes: 4, OutputBytes: 3}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
}

func TestTranscript_Eviction(t *testing.T) {
	tr := NewTranscript(10)

	tr.Record([]byte("aaaa"), DirectionOutput)
	tr.Record([]byte("bbbb"), DirectionOutput)
	tr.Record([]byte("cccc"), DirectionOutput)

	entries := tr.Entries()
	if len(entries) != 2 || entries[0].Data != "bbbb" {
		t.Errorf("Entries() = %+v, want the two newest", entries)
	}
	if tr.Size() != 8 {
		t.Errorf("Size() = %d, want 8", tr.Size())
	}
	if tr.Stats().Evicted != 1 {
		t.Errorf("Evicted = %d, want 1", tr.Stats().Evicted)
	}

	if err := tr.Record(make([]byte, 11), DirectionOutput); err == nil {
		t.Error("Record() larger than the transcript should fail")
	}

	tr.Clear()
	if tr.Size() != 0 || len(tr.Entries()) != 0 {
		t.Error("Clear() should empty the transcript")
	}
}

func TestTranscript_Export(t *testing.T) {
	tr := NewTranscript(0)
	tr.now = fixedClock()
	tr.Record([]byte("e hello"), DirectionInput)
	tr.Record([]byte("hello\n"), DirectionOutput)

	tests := []struct {
		name   string
		format FileFormat
		want   string
	}{
		{
			name:   "plain",
			format: FormatPlainText,
			want:   "e hello\nhello\n",
		},
		{
			name:   "timestamped",
			format: FormatTimestamped,
			want: "[2024-05-06 07:08:09.000] << e hello\n" +
				"[2024-05-06 07:08:09.000] >> hello\\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tr.Export(&buf, tt.format); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("Export() = %q, want %q", buf.String(), tt.want)
			}
		})
	}

	var buf bytes.Buffer
	if err := tr.Export(&buf, FileFormat(42)); err == nil {
		t.Error("Export() with unknown format should fail")
	}
}

func TestTranscript_SaveToFileJSON(t *testing.T) {
	tr := NewTranscript(0)
	tr.Record([]byte("q"), DirectionInput)

	filename := filepath.Join(t.TempDir(), "session.json")
	if err := tr.SaveToFile(filename, FormatJSON); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Entries []struct {
			Direction string `json:"direction"`
			Data      string `json:"data"`
		} `json:"entries"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Count != 1 || decoded.Entries[0].Direction != "input" || decoded.Entries[0].Data != "q" {
		t.Errorf("decoded = %+v", decoded)
	}

	if err := tr.SaveToFile("", FormatJSON); err == nil {
		t.Error("SaveToFile(\"\") should fail")
	}
	if err := tr.SaveToFile(filepath.Join(t.TempDir(), "missing", "x.log"), FormatPlainText); err == nil || !strings.Contains(err.Error(), "create") {
		t.Errorf("SaveToFile() into a missing directory error = %v", err)
	}
}
