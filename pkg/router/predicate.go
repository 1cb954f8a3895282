package router

import (
	"regexp"
	"strings"
)

// Predicate tests a lowercased command. A match may capture arguments.
type Predicate interface {
	Match(text string) (map[string]string, bool)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(text string) (map[string]string, bool)

func (f PredicateFunc) Match(text string) (map[string]string, bool) { return f(text) }

// Contains matches when any phrase is a substring.
func Contains(phrases ...string) Predicate {
	phrases = lowerAll(phrases)
	return PredicateFunc(func(text string) (map[string]string, bool) {
		for _, p := range phrases {
			if strings.Contains(text, p) {
				return nil, true
			}
		}
		return nil, false
	})
}

// ContainsAll matches when every phrase is a substring.
func ContainsAll(phrases ...string) Predicate {
	phrases = lowerAll(phrases)
	return PredicateFunc(func(text string) (map[string]string, bool) {
		if len(phrases) == 0 {
			return nil, false
		}
		for _, p := range phrases {
			if !strings.Contains(text, p) {
				return nil, false
			}
		}
		return nil, true
	})
}

// Regexp matches expr and captures its named groups as arguments. It panics
// on an invalid expression, like regexp.MustCompile.
func Regexp(expr string) Predicate {
	re := regexp.MustCompile(expr)
	names := re.SubexpNames()
	return PredicateFunc(func(text string) (map[string]string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return nil, false
		}
		var args map[string]string
		for i, name := range names {
			if i == 0 || name == "" {
				continue
			}
			if args == nil {
				args = make(map[string]string)
			}
			args[name] = strings.TrimSpace(m[i])
		}
		return args, true
	})
}

// And matches when all predicates match. Captured arguments are merged.
func And(ps ...Predicate) Predicate {
	return PredicateFunc(func(text string) (map[string]string, bool) {
		var args map[string]string
		for _, p := range ps {
			a, ok := p.Match(text)
			if !ok {
				return nil, false
			}
			args = merge(args, a)
		}
		return args, len(ps) > 0
	})
}

// Or matches the first predicate that matches.
func Or(ps ...Predicate) Predicate {
	return PredicateFunc(func(text string) (map[string]string, bool) {
		for _, p := range ps {
			if a, ok := p.Match(text); ok {
				return a, true
			}
		}
		return nil, false
	})
}

func Not(p Predicate) Predicate {
	return PredicateFunc(func(text string) (map[string]string, bool) {
		_, ok := p.Match(text)
		return nil, !ok
	})
}

// When matches whenever fn returns true, regardless of the text.
func When(fn func() bool) Predicate {
	return PredicateFunc(func(string) (map[string]string, bool) {
		return nil, fn()
	})
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func merge(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
