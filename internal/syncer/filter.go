package syncer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Direction tells whether a Rule adds or removes folders.
type Direction int

const (
	Include Direction = iota
	Exclude
)

func (d Direction) String() string {
	if d == Exclude {
		return "exclude"
	}
	return "include"
}

// Rule is one entry of an ordered folder filter.
type Rule struct {
	Direction Direction
	Pattern   string
}

// IncludeRule and ExcludeRule are shorthands for building rule lists.
func IncludeRule(pattern string) Rule { return Rule{Direction: Include, Pattern: pattern} }
func ExcludeRule(pattern string) Rule { return Rule{Direction: Exclude, Pattern: pattern} }

type compiledRule struct {
	Rule
	g     glob.Glob
	never bool // empty character class, matches nothing
}

func (r compiledRule) match(name string) bool {
	return !r.never && r.g.Match(name)
}

// CompileRules checks that every pattern is a valid glob.
func CompileRules(rules []Rule) error {
	_, err := compileRules(rules)
	return err
}

func compileRules(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		expr, never := globExpr(r.Pattern)
		// No separators: '*' crosses hierarchy levels like a shell fnmatch.
		g, err := glob.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", r.Direction, r.Pattern, err)
		}
		out = append(out, compiledRule{Rule: r, g: g, never: never})
	}
	return out, nil
}

// Filter applies rules in order to names and returns the surviving names.
//
// An empty rule list or one starting with an exclude starts from every name;
// one starting with an include starts from nothing. Includes match against the
// full names list and add what is not yet present; excludes match against the
// current result and remove. The result holds each name at most once.
func Filter(rules []Rule, names []string) ([]string, error) {
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}

	var result []string
	present := make(map[string]bool)
	if len(compiled) == 0 || compiled[0].Direction == Exclude {
		for _, n := range names {
			if !present[n] {
				present[n] = true
				result = append(result, n)
			}
		}
	}

	for _, r := range compiled {
		switch r.Direction {
		case Include:
			for _, n := range names {
				if !present[n] && r.match(n) {
					present[n] = true
					result = append(result, n)
				}
			}
		case Exclude:
			kept := result[:0]
			for _, n := range result {
				if r.match(n) {
					delete(present, n)
					continue
				}
				kept = append(kept, n)
			}
			result = kept
		}
	}
	if result == nil {
		result = []string{}
	}
	return result, nil
}

// globExpr rewrites a shell pattern into glob syntax. Only '*', '?', '[...]'
// and '[!...]' are special; braces, backslashes and an unclosed '[' match
// themselves. never is set when a character class can match nothing.
func globExpr(pattern string) (expr string, never bool) {
	p := []rune(pattern)
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		switch c := p[i]; c {
		case '*', '?':
			b.WriteRune(c)
		case '[':
			j := i + 1
			if j < len(p) && p[j] == '!' {
				j++
			}
			if j < len(p) && p[j] == ']' {
				j++
			}
			for j < len(p) && p[j] != ']' {
				j++
			}
			if j >= len(p) {
				b.WriteString(glob.QuoteMeta("["))
				continue
			}
			class, empty := classExpr(p[i+1 : j])
			never = never || empty
			b.WriteString(class)
			i = j
		default:
			b.WriteString(glob.QuoteMeta(string(c)))
		}
	}
	return b.String(), never
}

// classExpr turns the body of a bracket expression into glob syntax. Ranges
// are expanded so any mix of ranges and single characters can be expressed.
func classExpr(body []rune) (expr string, empty bool) {
	negate := len(body) > 0 && body[0] == '!'
	if negate {
		body = body[1:]
	}
	set := make(map[rune]bool)
	for k := 0; k < len(body); {
		if k+2 < len(body) && body[k+1] == '-' {
			for r := body[k]; r <= body[k+2]; r++ {
				set[r] = true
			}
			k += 3
			continue
		}
		set[body[k]] = true
		k++
	}
	members := make([]rune, 0, len(set))
	for r := range set {
		members = append(members, r)
	}
	// '-' must not follow the first member or it reads as a range.
	sort.Slice(members, func(i, j int) bool {
		if (members[i] == '-') != (members[j] == '-') {
			return members[j] == '-'
		}
		return members[i] < members[j]
	})

	switch {
	case len(members) == 0 && negate:
		return "?", false
	case len(members) == 0:
		return "", true
	case len(members) == 1 && !negate:
		return glob.QuoteMeta(string(members[0])), false
	case len(members) == 1:
		r := string(members[0])
		return "[!" + r + "-" + r + "]", false
	}
	var b strings.Builder
	b.WriteByte('[')
	if negate {
		b.WriteByte('!')
	}
	for _, r := range members {
		b.WriteByte('\\')
		b.WriteRune(r)
	}
	b.WriteByte(']')
	return b.String(), false
}
