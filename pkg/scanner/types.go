package scanner

// Span identifies where in the model reply a candidate was found
type Span int

const (
	SpanFenced Span = iota // inside a ``` code fence
	SpanInline             // backtick fragment or bare line outside fences
)

// String returns the name of the span
func (s Span) String() string {
	switch s {
	case SpanFenced:
		return "fenced"
	case SpanInline:
		return "inline"
	default:
		return "unknown"
	}
}

// Candidate is a line of text believed to be an executable shell command
type Candidate struct {
	Raw        string // text as found, continuation lines joined
	Text       string // Raw trimmed, list numbering and prompt markers removed
	Normalized string // Text with internal whitespace collapsed; dedup key
	Span       Span
	Language   string // fence tag, empty for inline and untagged fences
	StartPos   int
	EndPos     int
}

// TextToCommands turns free-form model output into ordered command strings.
// Implementations must return an empty slice, not an error, when nothing matches.
type TextToCommands interface {
	Commands(text string) []string
}
