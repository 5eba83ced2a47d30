package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Entry is one recorded UI call.
type Entry struct {
	Method string
	Value  string
}

type sharedState struct {
	entries []Entry
	answers []bool
	next    int
	buf     *bytes.Buffer
}

// RecordingUI implements UI for tests. Output calls are recorded as entries;
// tables and key/value blocks are recorded one entry per row with cells
// joined by " | ". Confirm answers are served from the scripted answers and
// running out of them panics.
type RecordingUI struct {
	shared      *sharedState
	indentLevel int
}

func NewRecordingUI(answers ...bool) *RecordingUI {
	return &RecordingUI{
		shared: &sharedState{
			answers: answers,
			buf:     &bytes.Buffer{},
		},
	}
}

func (r *RecordingUI) record(method, value string) {
	r.shared.entries = append(r.shared.entries, Entry{Method: method, Value: value})
}

func (r *RecordingUI) Style(t StyledText) string {
	return t.Text
}

func (r *RecordingUI) Info(format string, args ...any) {
	r.record("Info", fmt.Sprintf(format, args...))
}

func (r *RecordingUI) Success(format string, args ...any) {
	r.record("Success", fmt.Sprintf(format, args...))
}

func (r *RecordingUI) Warn(format string, args ...any) {
	r.record("Warn", fmt.Sprintf(format, args...))
}

func (r *RecordingUI) Error(format string, args ...any) {
	r.record("Error", fmt.Sprintf(format, args...))
}

func (r *RecordingUI) Critical(format string, args ...any) {
	r.record("Critical", fmt.Sprintf(format, args...))
}

func (r *RecordingUI) Section(title string) {
	r.record("Section", title)
}

func (r *RecordingUI) KeyValue(rows [][2]string) {
	for _, row := range rows {
		r.record("KeyValue", row[0]+" | "+row[1])
	}
}

func (r *RecordingUI) Table(headers []string, rows [][]string) {
	if len(headers) > 0 {
		r.record("TableHeader", strings.Join(headers, " | "))
	}
	for _, row := range rows {
		r.record("TableRow", strings.Join(row, " | "))
	}
}

func (r *RecordingUI) JSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.record("JSON", string(b))
	return nil
}

func (r *RecordingUI) Spinner(msg string) func() {
	r.record("Spinner", msg)
	return func() {}
}

func (r *RecordingUI) Confirm(prompt string, defaultYes bool) bool {
	r.record("Confirm", prompt)
	if r.shared.next >= len(r.shared.answers) {
		panic(fmt.Sprintf("RecordingUI: no scripted answer left for Confirm(%q)", prompt))
	}
	answer := r.shared.answers[r.shared.next]
	r.shared.next++
	return answer
}

func (r *RecordingUI) Indent() UI {
	return &RecordingUI{shared: r.shared, indentLevel: r.indentLevel + 1}
}

func (r *RecordingUI) Writer() io.Writer {
	return r.shared.buf
}

// Entries returns every recorded call in order.
func (r *RecordingUI) Entries() []Entry {
	return r.shared.entries
}

// Messages returns the values recorded for method.
func (r *RecordingUI) Messages(method string) []string {
	var out []string
	for _, e := range r.shared.entries {
		if e.Method == method {
			out = append(out, e.Value)
		}
	}
	return out
}

// HasMessage reports whether any entry contains substr, ignoring case.
func (r *RecordingUI) HasMessage(substr string) bool {
	lower := strings.ToLower(substr)
	for _, e := range r.shared.entries {
		if strings.Contains(strings.ToLower(e.Value), lower) {
			return true
		}
	}
	return false
}

// Output returns what was written to Writer.
func (r *RecordingUI) Output() string {
	return r.shared.buf.String()
}
