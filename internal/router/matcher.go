package router

import (
	"fmt"
	"regexp"
	"strings"
)

// RemainingCapture names the capture holding what a trailing /** matched,
// without its leading slash.
const RemainingCapture = "remaining"

var paramNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Pattern is a compiled path pattern.
//
// Grammar, segment by segment:
//
//	literal   matches itself; * inside a literal matches within one segment
//	*         any single non-empty segment
//	{name}    any single non-empty segment, captured as name
//	**        zero or more trailing segments, captured as "remaining";
//	          only allowed as the last segment
type Pattern struct {
	raw   string
	regex *regexp.Regexp
}

// CompilePattern compiles a path pattern.
func CompilePattern(pattern string) (*Pattern, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("pattern %q must start with /", pattern)
	}

	var sb strings.Builder
	sb.WriteString("^")

	if pattern == "/" {
		sb.WriteString("/$")
		return &Pattern{raw: pattern, regex: regexp.MustCompile(sb.String())}, nil
	}

	segments := strings.Split(pattern[1:], "/")
	seen := make(map[string]struct{})

	for i, seg := range segments {
		last := i == len(segments)-1

		switch {
		case seg == "**":
			if !last {
				return nil, fmt.Errorf("pattern %q: ** must be the last segment", pattern)
			}
			sb.WriteString("(?:/(?P<" + RemainingCapture + ">.*))?")

		case seg == "*":
			sb.WriteString("/[^/]+")

		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
			name := seg[1 : len(seg)-1]
			if !paramNamePattern.MatchString(name) || name == RemainingCapture {
				return nil, fmt.Errorf("pattern %q: invalid parameter name %q", pattern, name)
			}
			if _, dup := seen[name]; dup {
				return nil, fmt.Errorf("pattern %q: duplicate parameter %q", pattern, name)
			}
			seen[name] = struct{}{}
			sb.WriteString("/(?P<" + name + ">[^/]+)")

		default:
			if strings.Contains(seg, "**") {
				return nil, fmt.Errorf("pattern %q: ** must be a whole segment", pattern)
			}
			sb.WriteString("/")
			sb.WriteString(segmentToRegex(seg))
		}
	}
	sb.WriteString("$")

	regex, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}

	return &Pattern{raw: pattern, regex: regex}, nil
}

// MustCompilePattern is like CompilePattern but panics on error.
func MustCompilePattern(pattern string) *Pattern {
	p, err := CompilePattern(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

func segmentToRegex(seg string) string {
	var sb strings.Builder
	for _, r := range seg {
		if r == '*' {
			sb.WriteString("[^/]*")
			continue
		}
		sb.WriteString(regexp.QuoteMeta(string(r)))
	}
	return sb.String()
}

// Match reports whether path matches and returns the named captures.
func (p *Pattern) Match(path string) (captures map[string]string, matched bool) {
	m := p.regex.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}

	names := p.regex.SubexpNames()
	if len(names) <= 1 {
		return nil, true
	}

	captures = make(map[string]string, len(names)-1)
	for i, name := range names {
		if i > 0 && name != "" {
			captures[name] = m[i]
		}
	}
	return captures, true
}

// Matches reports whether path matches.
func (p *Pattern) Matches(path string) bool {
	return p.regex.MatchString(path)
}

// String returns the source pattern.
func (p *Pattern) String() string {
	return p.raw
}

// MethodMatcher matches HTTP methods.
type MethodMatcher struct {
	methods map[string]bool
}

// NewMethodMatcher creates a method matcher. An empty list matches every
// method.
func NewMethodMatcher(methods []string) *MethodMatcher {
	m := &MethodMatcher{methods: make(map[string]bool, len(methods))}
	for _, method := range methods {
		m.methods[strings.ToUpper(method)] = true
	}
	return m
}

// Match checks if the method matches.
func (m *MethodMatcher) Match(method string) bool {
	if len(m.methods) == 0 || m.methods["*"] {
		return true
	}

	method = strings.ToUpper(method)

	// HEAD automatically matches GET
	if method == "HEAD" && m.methods["GET"] {
		return true
	}

	return m.methods[method]
}
