package anonymizer

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"PcapLens/internal/config"
	"PcapLens/internal/engine/protocol"

	"github.com/gobwas/glob"
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)
	keyPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`\b[A-Za-z0-9]{32,}\b`),
		regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		regexp.MustCompile(`(?i)api[_-]?key["\s:=]+[A-Za-z0-9]+`),
		regexp.MustCompile(`(?i)token["\s:=]+[A-Za-z0-9]+`),
	}
)

// RuleKind tells which statistic a redaction rule feeds.
type RuleKind int

const (
	// RuleHeader rules count every redacted header line.
	RuleHeader RuleKind = iota
	// RuleSensitive rules count once per payload they changed.
	RuleSensitive
)

// Matcher replaces every match in src with token and reports the number of
// replacements.
type Matcher interface {
	Replace(src []byte, token string) ([]byte, int)
}

// Rule pairs a matcher with its redaction token.
type Rule struct {
	Name    string
	Kind    RuleKind
	Matcher Matcher
	Token   string
}

// Redactor applies an ordered list of rules to HTTP-like payloads.
type Redactor struct {
	rules []Rule
}

// RedactResult counts what a single Redact call removed.
type RedactResult struct {
	Headers   int
	Sensitive int
}

// NewRedactor builds the default rule list: sensitive headers, emails, then
// the opaque key heuristics.
func NewRedactor(cfg config.SanitizerConfig) (*Redactor, error) {
	headers, err := NewHeaderMatcher(cfg.SensitiveHeaders)
	if err != nil {
		return nil, err
	}

	rules := []Rule{
		{Name: "headers", Kind: RuleHeader, Matcher: headers, Token: cfg.Tokens.Header},
		{Name: "email", Kind: RuleSensitive, Matcher: RegexpMatcher{emailPattern}, Token: cfg.Tokens.Email},
	}
	for _, re := range keyPatterns {
		rules = append(rules, Rule{Name: "key", Kind: RuleSensitive, Matcher: RegexpMatcher{re}, Token: cfg.Tokens.Key})
	}
	return NewRedactorWithRules(rules...), nil
}

// NewRedactorWithRules builds a Redactor from an explicit rule list.
func NewRedactorWithRules(rules ...Rule) *Redactor {
	return &Redactor{rules: rules}
}

// Redact applies the rules in order. Payloads without an HTTP marker are
// returned untouched.
func (r *Redactor) Redact(payload []byte) ([]byte, RedactResult) {
	var res RedactResult
	if !protocol.LooksLikeHTTP(payload) {
		return payload, res
	}
	out := payload
	for _, rule := range r.rules {
		replaced, n := rule.Matcher.Replace(out, rule.Token)
		if n == 0 {
			continue
		}
		out = replaced
		switch rule.Kind {
		case RuleHeader:
			res.Headers += n
		case RuleSensitive:
			res.Sensitive++
		}
	}
	return out, res
}

// RegexpMatcher replaces every match of a regular expression.
type RegexpMatcher struct {
	Re *regexp.Regexp
}

func (m RegexpMatcher) Replace(src []byte, token string) ([]byte, int) {
	n := len(m.Re.FindAllIndex(src, -1))
	if n == 0 {
		return src, 0
	}
	return m.Re.ReplaceAllLiteral(src, []byte(token)), n
}

// HeaderMatcher replaces the value of header lines whose name matches one of
// its glob patterns, case-insensitively.
type HeaderMatcher struct {
	patterns []glob.Glob
}

// NewHeaderMatcher compiles the header name patterns.
func NewHeaderMatcher(patterns []string) (*HeaderMatcher, error) {
	m := &HeaderMatcher{}
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid sensitive header pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

func (m *HeaderMatcher) matches(name string) bool {
	name = strings.ToLower(name)
	for _, g := range m.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func (m *HeaderMatcher) Replace(src []byte, token string) ([]byte, int) {
	lines := bytes.SplitAfter(src, []byte("\n"))
	n := 0
	for i, line := range lines {
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		name := line[:colon]
		if bytes.ContainsAny(name, " \t") || !m.matches(string(name)) {
			continue
		}

		var eol []byte
		switch {
		case bytes.HasSuffix(line, []byte("\r\n")):
			eol = []byte("\r\n")
		case bytes.HasSuffix(line, []byte("\n")):
			eol = []byte("\n")
		}
		redacted := make([]byte, 0, len(name)+2+len(token)+len(eol))
		redacted = append(redacted, name...)
		redacted = append(redacted, ": "...)
		redacted = append(redacted, token...)
		redacted = append(redacted, eol...)
		lines[i] = redacted
		n++
	}
	if n == 0 {
		return src, 0
	}
	return bytes.Join(lines, nil), n
}
