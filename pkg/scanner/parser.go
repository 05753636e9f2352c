package scanner

import (
	"regexp"
	"strings"

	"github.com/computerscienceiscool/llm-autorun/pkg/config"
)

var (
	fencePattern      = regexp.MustCompile("(?s)```[ \t]*([A-Za-z0-9_+.-]*)[^\n]*\n(.*?)```")
	inlineCodePattern = regexp.MustCompile("`([^`\n]+)`")
	listMarkerPattern = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*+•])\s+`)
	promptPattern     = regexp.MustCompile(`^(?:\$|>|PS(?:\s+[^>]*)?>)\s+`)
	assignPattern     = regexp.MustCompile(`^(?:\$[A-Za-z_][A-Za-z0-9_:]*\s*=|[A-Za-z_][A-Za-z0-9_]*=\S)`)
	proseEndPattern   = regexp.MustCompile(`(?:[A-Za-z)\]]\.|[:?!])$`)
	posixContinuation = regexp.MustCompile(`\s\\$`)
)

// ExtractorOptions configures the matching heuristics
type ExtractorOptions struct {
	Verbs          []string // inline allow-list; entries ending in '-' are cmdlet verb prefixes
	FenceLanguages []string // accepted fence tags; "" accepts untagged fences
}

// Extractor finds commands in model replies using regular expressions.
// It is immutable after construction and safe for concurrent use.
type Extractor struct {
	cmdletVerbs []string
	plainVerbs  map[string]struct{}
	languages   map[string]struct{}
}

// NewExtractor creates an extractor. Nil option slices fall back to the defaults.
func NewExtractor(opts ExtractorOptions) *Extractor {
	verbs := opts.Verbs
	if verbs == nil {
		verbs = config.DefaultVerbs()
	}
	langs := opts.FenceLanguages
	if langs == nil {
		langs = config.DefaultFenceLanguages()
	}

	e := &Extractor{
		plainVerbs: make(map[string]struct{}, len(verbs)),
		languages:  make(map[string]struct{}, len(langs)),
	}
	for _, v := range verbs {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.HasSuffix(v, "-") {
			e.cmdletVerbs = append(e.cmdletVerbs, strings.ToLower(v))
			continue
		}
		e.plainVerbs[v] = struct{}{}
	}
	for _, l := range langs {
		e.languages[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	return e
}

// Commands returns the trimmed command strings found in text, in execution order.
// Inner whitespace is kept as written; Normalized is only the dedup key.
func (e *Extractor) Commands(text string) []string {
	commands := []string{}
	sc := NewScanner(text, e)
	for c := sc.Scan(); c != nil; c = sc.Scan() {
		commands = append(commands, c.Text)
	}
	return commands
}

// Extract returns every candidate found in text, in execution order
func (e *Extractor) Extract(text string) []Candidate {
	var candidates []Candidate
	sc := NewScanner(text, e)
	for c := sc.Scan(); c != nil; c = sc.Scan() {
		candidates = append(candidates, *c)
	}
	return candidates
}

// fences returns the submatch indices of code fences whose tag is accepted
func (e *Extractor) fences(text string) [][]int {
	var out [][]int
	for _, m := range fencePattern.FindAllStringSubmatchIndex(text, -1) {
		lang := strings.ToLower(text[m[2]:m[3]])
		if _, ok := e.languages[lang]; !ok {
			continue
		}
		out = append(out, m)
	}
	return out
}

// blockCandidates splits one fence body into logical commands
func (e *Extractor) blockCandidates(text string, m []int) []Candidate {
	lang := text[m[2]:m[3]]
	body := text[m[4]:m[5]]
	offset := m[4]

	var out []Candidate
	var pending strings.Builder
	pendingStart := -1

	flush := func(end int) {
		if pendingStart < 0 {
			return
		}
		raw := pending.String()
		if c, ok := newCandidate(raw, SpanFenced, lang, pendingStart, end); ok {
			out = append(out, c)
		}
		pending.Reset()
		pendingStart = -1
	}

	pos := 0
	for _, line := range strings.SplitAfter(body, "\n") {
		lineStart := offset + pos
		pos += len(line)
		lineEnd := offset + pos
		line = strings.TrimRight(line, "\r\n")
		trimmed := strings.TrimSpace(line)

		if pendingStart < 0 && (trimmed == "" || isComment(trimmed)) {
			continue
		}

		if pendingStart < 0 {
			pendingStart = lineStart
		} else {
			pending.WriteByte(' ')
		}

		switch {
		case strings.HasSuffix(trimmed, "`") && !strings.HasSuffix(trimmed, "``"):
			pending.WriteString(strings.TrimSpace(strings.TrimSuffix(trimmed, "`")))
		case posixContinuation.MatchString(line):
			pending.WriteString(strings.TrimSpace(strings.TrimSuffix(trimmed, "\\")))
		default:
			pending.WriteString(trimmed)
			flush(lineEnd)
		}
	}
	flush(offset + len(body))
	return out
}

// lineCandidates returns inline candidates found on a single line outside fences
func (e *Extractor) lineCandidates(line string, lineStart int) []Candidate {
	var out []Candidate

	spans := inlineCodePattern.FindAllStringSubmatchIndex(line, -1)
	if len(spans) > 0 {
		for _, m := range spans {
			frag := line[m[2]:m[3]]
			if !e.isCommand(frag, true) {
				continue
			}
			if c, ok := newCandidate(frag, SpanInline, "", lineStart+m[0], lineStart+m[1]); ok {
				out = append(out, c)
			}
		}
		return out
	}

	trimmed := strings.TrimSpace(line)
	if trimmed == "" || isComment(trimmed) || proseEndPattern.MatchString(trimmed) {
		return nil
	}
	stripped := listMarkerPattern.ReplaceAllString(trimmed, "")
	if !e.isCommand(stripped, false) {
		return nil
	}
	if c, ok := newCandidate(line, SpanInline, "", lineStart, lineStart+len(line)); ok {
		out = append(out, c)
	}
	return out
}

// isCommand reports whether s begins with an allow-listed verb or a variable assignment.
// Backtick fragments made of a single bare word are treated as prose unless they are cmdlets.
func (e *Extractor) isCommand(s string, fragment bool) bool {
	s = promptPattern.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return false
	}
	if assignPattern.MatchString(s) {
		return true
	}
	fields := strings.Fields(s)
	first := fields[0]

	lower := strings.ToLower(first)
	for _, verb := range e.cmdletVerbs {
		if strings.HasPrefix(lower, verb) && len(lower) > len(verb) {
			return true
		}
	}
	if _, ok := e.plainVerbs[first]; ok {
		return !fragment || len(fields) > 1
	}
	return false
}

func isComment(line string) bool {
	if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "::") {
		return true
	}
	upper := strings.ToUpper(line)
	return upper == "REM" || strings.HasPrefix(upper, "REM ")
}

// newCandidate cleans raw text into a candidate; ok is false when nothing executable remains
func newCandidate(raw string, span Span, lang string, start, end int) (Candidate, bool) {
	text := strings.TrimSpace(raw)
	text = listMarkerPattern.ReplaceAllString(text, "")
	text = promptPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return Candidate{}, false
	}
	return Candidate{
		Raw:        raw,
		Text:       text,
		Normalized: Normalize(text),
		Span:       span,
		Language:   lang,
		StartPos:   start,
		EndPos:     end,
	}, true
}

// Normalize collapses internal whitespace and trims the ends
func Normalize(command string) string {
	return strings.Join(strings.Fields(command), " ")
}
