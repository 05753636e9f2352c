package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/computerscienceiscool/llm-autorun/pkg/config"
)

// Verdict is the outcome of checking one command against the deny policy
type Verdict struct {
	Blocked bool
	Pattern string
	Reason  string
}

type denyRule struct {
	source string
	re     *regexp.Regexp
}

// DenyPolicy refuses commands matching known destructive patterns.
//
// The filter is advisory. It matches command text, so aliases, quoting tricks,
// encoded payloads and scripts that are downloaded then run all get through.
// Use the docker backend when commands must be contained.
type DenyPolicy struct {
	rules []denyRule
}

// NewDenyPolicy compiles patterns case-insensitively. Nil patterns use the defaults.
func NewDenyPolicy(patterns []string) (*DenyPolicy, error) {
	if patterns == nil {
		patterns = config.DefaultDenyPatterns()
	}

	p := &DenyPolicy{}
	for _, src := range patterns {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + src)
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", src, err)
		}
		p.rules = append(p.rules, denyRule{source: src, re: re})
	}
	return p, nil
}

// Check reports whether command is blocked and by which pattern
func (p *DenyPolicy) Check(command string) Verdict {
	if p == nil {
		return Verdict{}
	}
	for _, r := range p.rules {
		if match := r.re.FindString(command); match != "" {
			return Verdict{
				Blocked: true,
				Pattern: r.source,
				Reason:  fmt.Sprintf("matches deny pattern %q", strings.TrimSpace(match)),
			}
		}
	}
	return Verdict{}
}

// Len returns the number of active rules
func (p *DenyPolicy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}
