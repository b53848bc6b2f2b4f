package ecs

import (
	"fmt"
	"strings"
)

// TermSource selects where a term's data comes from.
type TermSource uint8

const (
	// SourceSelf matches against the iterated entity's own archetype.
	SourceSelf TermSource = iota
	// SourceParent resolves the term through the entity's ChildOf parent.
	SourceParent
	// SourceNamed resolves the term on a fixed entity.
	SourceNamed
)

// TermOperator combines a term with the rest of the filter.
type TermOperator uint8

const (
	OpAnd TermOperator = iota
	OpOr
	OpNot
	OpOptional
)

// TermInOut declares the access intent for a term's column.
type TermInOut uint8

const (
	// InOutDefault normalizes to InOut.
	InOutDefault TermInOut = iota
	InOut
	In
	Out
	// InOutNone marks a term that only takes part in matching. The batch
	// still resolves its column; read-only iteration rejects access to it.
	InOutNone
)

// TermAccess constrains whether the id may be owned by the archetype or
// inherited through an InstanceOf base.
type TermAccess uint8

const (
	AccessAny TermAccess = iota
	AccessOwned
	AccessShared
)

// Term is one clause of a filter. ID may be a plain component id, a
// role-flagged id, a pair, or a wildcard pattern.
type Term struct {
	ID      EntityId
	Source  TermSource
	Subject EntityId // fixed entity for SourceNamed
	Oper    TermOperator
	InOut   TermInOut
	Access  TermAccess
}

// Filter is a normalized conjunctive term list. Or terms form contiguous
// groups; at least one term per group must match.
type Filter struct {
	Terms []Term
}

// NewFilter normalizes a term list into a filter: defaults are resolved
// (InOut, SourceSelf, OpAnd) and term order is preserved.
func NewFilter(terms []Term) (*Filter, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("empty term list: %w", ErrInvalidFilter)
	}
	out := make([]Term, len(terms))
	copy(out, terms)
	for i := range out {
		t := &out[i]
		if t.ID == 0 {
			return nil, fmt.Errorf("term %d has no id: %w", i, ErrInvalidFilter)
		}
		if t.InOut == InOutDefault {
			t.InOut = InOut
		}
		if t.Oper == OpNot && t.InOut != InOutNone {
			t.InOut = InOutNone
		}
	}
	return &Filter{Terms: out}, nil
}

// ParseFilter compiles a textual signature into a filter. The grammar is a
// comma-separated term list:
//
//	[inout]Id, ?Id, !Id, (Rel,Obj), *, A || B, OWNED:Id, SHARED:Id,
//	ChildOf(Parent), InstanceOf(Base), Id(parent), Id(Entity)
//
// where inout is one of in, out, inout, none, and names resolve through
// the world's component registry. ChildOf(*) and InstanceOf(*) build
// role-flagged wildcard patterns; Id(src) annotates the term source.
func ParseFilter(w *World, expr string) (*Filter, error) {
	parts, err := splitTop(expr, ',')
	if err != nil {
		return nil, err
	}
	var terms []Term
	for _, part := range parts {
		alts, err := splitOr(part)
		if err != nil {
			return nil, err
		}
		for _, alt := range alts {
			t, err := parseTerm(w, alt)
			if err != nil {
				return nil, err
			}
			if len(alts) > 1 {
				if t.Oper != OpAnd {
					return nil, fmt.Errorf("%q: !/? cannot appear in an or group: %w", alt, ErrInvalidFilter)
				}
				t.Oper = OpOr
			}
			terms = append(terms, t)
		}
	}
	return NewFilter(terms)
}

func parseTerm(w *World, s string) (Term, error) {
	t := Term{}
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return t, fmt.Errorf("%q: unterminated inout annotation: %w", s, ErrInvalidFilter)
		}
		switch strings.TrimSpace(s[1:end]) {
		case "in":
			t.InOut = In
		case "out":
			t.InOut = Out
		case "inout":
			t.InOut = InOut
		case "none":
			t.InOut = InOutNone
		default:
			return t, fmt.Errorf("%q: unknown inout annotation: %w", s, ErrInvalidFilter)
		}
		s = strings.TrimSpace(s[end+1:])
	}

	switch {
	case strings.HasPrefix(s, "!"):
		t.Oper = OpNot
		s = strings.TrimSpace(s[1:])
	case strings.HasPrefix(s, "?"):
		t.Oper = OpOptional
		s = strings.TrimSpace(s[1:])
	}

	if rest, ok := strings.CutPrefix(s, "OWNED:"); ok {
		t.Access = AccessOwned
		s = strings.TrimSpace(rest)
	} else if rest, ok := strings.CutPrefix(s, "SHARED:"); ok {
		t.Access = AccessShared
		s = strings.TrimSpace(rest)
	}

	if s == "" {
		return t, fmt.Errorf("empty term: %w", ErrInvalidFilter)
	}
	if err := parseTermId(w, s, &t); err != nil {
		return t, err
	}
	return t, nil
}

func parseTermId(w *World, s string, t *Term) error {
	// pair: (Rel,Obj)
	if strings.HasPrefix(s, "(") {
		if !strings.HasSuffix(s, ")") {
			return fmt.Errorf("%q: unterminated pair: %w", s, ErrInvalidFilter)
		}
		inner := s[1 : len(s)-1]
		rel, obj, found := strings.Cut(inner, ",")
		if !found {
			return fmt.Errorf("%q: pair needs a relation and an object: %w", s, ErrInvalidFilter)
		}
		r, err := resolveName(w, strings.TrimSpace(rel))
		if err != nil {
			return err
		}
		o, err := resolveName(w, strings.TrimSpace(obj))
		if err != nil {
			return err
		}
		t.ID = Pair(r, o)
		return nil
	}

	// Name(arg): a role application for the builtin relations, a source
	// annotation for everything else
	if open := strings.Index(s, "("); open > 0 && strings.HasSuffix(s, ")") {
		name := strings.TrimSpace(s[:open])
		arg := strings.TrimSpace(s[open+1 : len(s)-1])
		switch name {
		case "ChildOf", "InstanceOf":
			role := ChildOf
			if name == "InstanceOf" {
				role = InstanceOf
			}
			target, err := resolveName(w, arg)
			if err != nil {
				return err
			}
			t.ID = role | target
			return nil
		default:
			id, err := resolveName(w, name)
			if err != nil {
				return err
			}
			t.ID = id
			if arg == "parent" {
				t.Source = SourceParent
				return nil
			}
			subject, err := resolveName(w, arg)
			if err != nil {
				return err
			}
			t.Source = SourceNamed
			t.Subject = subject
			return nil
		}
	}

	id, err := resolveName(w, s)
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

func resolveName(w *World, name string) (EntityId, error) {
	if name == "*" {
		return Wildcard, nil
	}
	if id, ok := w.Lookup(name); ok {
		return id, nil
	}
	return 0, fmt.Errorf("name %q: %w", name, ErrInvalidFilter)
}

// splitTop splits on sep outside parentheses and brackets.
func splitTop(expr string, sep byte) ([]string, error) {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%q: unbalanced parentheses: %w", expr, ErrInvalidFilter)
			}
		case sep:
			if depth == 0 {
				parts = append(parts, expr[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%q: unbalanced parentheses: %w", expr, ErrInvalidFilter)
	}
	parts = append(parts, expr[start:])
	return parts, nil
}

func splitOr(part string) ([]string, error) {
	alts := strings.Split(part, "||")
	for i := range alts {
		alts[i] = strings.TrimSpace(alts[i])
		if alts[i] == "" {
			return nil, fmt.Errorf("%q: empty or branch: %w", part, ErrInvalidFilter)
		}
	}
	return alts, nil
}
