package ui

import (
	"encoding/json"
	"io"
)

// Severity classifies the visual weight of a piece of inline text.
type Severity uint8

const (
	SeverityInfo     Severity = iota // plain
	SeveritySuccess                  // green
	SeverityWarn                     // yellow
	SeverityError                    // red
	SeverityCritical                 // bold
)

// StyledText pairs a plain string with a Severity. It marshals to JSON as the
// plain string.
type StyledText struct {
	Text     string
	Severity Severity
}

func (s StyledText) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Text)
}

// Styled is a shorthand for StyledText{text, sev}.
func Styled(text string, sev Severity) StyledText {
	return StyledText{Text: text, Severity: sev}
}

// UI is everything walletfactory commands print or ask.
//
// TerminalUI writes to the terminal. RecordingUI captures calls for tests.
type UI interface {
	// Style colours t according to its Severity. Colour-free UIs return
	// the plain text.
	Style(t StyledText) string

	Info(format string, args ...any)
	Success(format string, args ...any)
	Warn(format string, args ...any)
	// Error prints a failure. It does not exit.
	Error(format string, args ...any)
	// Critical prints something the user must not miss, such as the
	// address of a wallet that was just created.
	Critical(format string, args ...any)

	// Section prints a separator centred around title.
	Section(title string)
	// KeyValue prints label/value rows with aligned values.
	KeyValue(rows [][2]string)
	// Table prints a bordered table. A nil header omits the header row.
	Table(headers []string, rows [][]string)
	// JSON prints v as indented JSON.
	JSON(v any) error

	// Spinner shows msg until the returned func is called.
	Spinner(msg string) func()

	// Confirm asks a yes/no question.
	Confirm(prompt string, defaultYes bool) bool

	// Indent returns a child UI one level deeper sharing the same streams.
	Indent() UI
	// Writer prefixes every written line with the current indentation.
	Writer() io.Writer
}
