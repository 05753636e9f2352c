package scanner

import (
	"strings"
)

// ScannerState represents the current extraction phase
type ScannerState int

const (
	StateFenced ScannerState = iota // Walking accepted code fences
	StateInline                     // Walking lines outside fences
	StateDone                       // Exhausted; Scan returns nil forever
)

// String returns the name of the state (for debugging)
func (s ScannerState) String() string {
	switch s {
	case StateFenced:
		return "StateFenced"
	case StateInline:
		return "StateInline"
	case StateDone:
		return "StateDone"
	default:
		return "StateUnknown"
	}
}

// Scanner lazily yields command candidates from one model reply.
// Fenced candidates come first, then inline ones. It is not restartable.
type Scanner struct {
	state     ScannerState
	text      string
	extractor *Extractor

	fences   [][]int
	fenceIdx int

	masked    string
	lineStart int

	pending []Candidate
	seen    map[string]struct{}
}

// NewScanner creates a scanner over text. A nil extractor uses the defaults.
func NewScanner(text string, extractor *Extractor) *Scanner {
	if extractor == nil {
		extractor = NewExtractor(ExtractorOptions{})
	}
	return &Scanner{
		state:     StateFenced,
		text:      text,
		extractor: extractor,
		fences:    extractor.fences(text),
		seen:      make(map[string]struct{}),
	}
}

// State returns the current phase
func (s *Scanner) State() ScannerState {
	return s.state
}

// transitionTo changes state
func (s *Scanner) transitionTo(newState ScannerState) {
	s.state = newState
}

// Scan returns the next unique candidate.
// Returns nil when the reply is exhausted.
func (s *Scanner) Scan() *Candidate {
	for {
		if len(s.pending) > 0 {
			c := s.pending[0]
			s.pending = s.pending[1:]
			if _, dup := s.seen[c.Normalized]; dup {
				continue
			}
			s.seen[c.Normalized] = struct{}{}
			return &c
		}

		switch s.state {
		case StateFenced:
			if s.fenceIdx < len(s.fences) {
				s.pending = s.extractor.blockCandidates(s.text, s.fences[s.fenceIdx])
				s.fenceIdx++
				continue
			}
			s.masked = maskFences(s.text, fencePattern.FindAllStringIndex(s.text, -1))
			s.transitionTo(StateInline)

		case StateInline:
			if s.lineStart >= len(s.masked) {
				s.transitionTo(StateDone)
				continue
			}
			end := strings.IndexByte(s.masked[s.lineStart:], '\n')
			if end < 0 {
				end = len(s.masked)
			} else {
				end += s.lineStart
			}
			line := strings.TrimRight(s.masked[s.lineStart:end], "\r")
			s.pending = s.extractor.lineCandidates(line, s.lineStart)
			s.lineStart = end + 1

		default:
			return nil
		}
	}
}

// maskFences blanks every fence region, accepted or not, so inline scanning cannot see them.
// Newlines are kept so byte offsets stay aligned with the original text.
func maskFences(text string, fences [][]int) string {
	if len(fences) == 0 {
		return text
	}
	b := []byte(text)
	for _, m := range fences {
		for i := m[0]; i < m[1]; i++ {
			if b[i] != '\n' {
				b[i] = ' '
			}
		}
	}
	return string(b)
}
