// Package search implements wildcard query planning and execution against
// an archive: tokenizing the search string, enumerating ambiguous token
// interpretations into sub-queries, pruning by dictionary and segment, and
// verifying candidate messages.
package search

import (
	"strings"

	"github.com/gftdcojp/logvault/internal/strutil"
)

// tokenType is one interpretation of a query token. Ambiguous tokens cycle
// through several types, producing one sub-query per combination.
type tokenType int

const (
	typeWildcard tokenType = iota
	typeLogtype
	typeDictionaryVar
	typeFloatVar
	typeIntVar
)

// queryToken is one token of the processed search string.
type queryToken struct {
	value    string
	beginPos int
	endPos   int

	hasPrefixGreedyWildcard   bool
	hasSuffixGreedyWildcard   bool
	hasGreedyWildcardInMiddle bool
	containsWildcards         bool
	cannotConvertToNonDictVar bool

	typ tokenType
	// interpretations when the token is ambiguous
	possibleTypes []tokenType
	currentTypeIx int
}

func newQueryToken(query string, beginPos, endPos int, isVar bool) *queryToken {
	t := &queryToken{
		value:    query[beginPos:endPos],
		beginPos: beginPos,
		endPos:   endPos,
	}

	if t.value == "*" {
		t.typ = typeWildcard
		return t
	}

	t.hasPrefixGreedyWildcard = strings.HasPrefix(t.value, "*")
	t.hasSuffixGreedyWildcard = strings.HasSuffix(t.value, "*") && !strings.HasSuffix(t.value, "\\*")
	for i := 1; i < len(t.value)-1; i++ {
		if t.value[i] == '*' && t.value[i-1] != '\\' {
			t.hasGreedyWildcardInMiddle = true
			break
		}
	}
	// Trim bounding wildcards when testing the middle
	if t.hasPrefixGreedyWildcard && t.hasGreedyWildcardInMiddle {
		inner := strings.Trim(t.value, "*")
		t.hasGreedyWildcardInMiddle = strings.ContainsRune(inner, '*')
	}
	t.containsWildcards = t.hasPrefixGreedyWildcard || t.hasSuffixGreedyWildcard ||
		t.hasGreedyWildcardInMiddle || strings.ContainsRune(t.value, '?')

	if !t.containsWildcards {
		if !isVar {
			t.typ = typeLogtype
			return t
		}
		switch {
		case couldBeExactInt(t.value):
			t.typ = typeIntVar
		case couldBeExactFloat(t.value):
			t.typ = typeFloatVar
		default:
			t.typ = typeDictionaryVar
		}
		return t
	}

	// A token with wildcards is ambiguous regardless of its heuristic
	// classification: the wildcards may cover delimiters (making the token
	// part of static text) or the token may match any of the variable
	// encodings. Substring queries surround every boundary token with '*',
	// so this is the common case.
	stripped := strings.Trim(t.value, "*")
	couldBeInt := isDigitsAndWildcards(stripped)
	couldBeFloat := isFloatCharsAndWildcards(stripped)
	t.cannotConvertToNonDictVar = !couldBeInt && !couldBeFloat

	t.possibleTypes = append(t.possibleTypes, typeLogtype)
	if couldBeInt {
		t.possibleTypes = append(t.possibleTypes, typeIntVar)
	}
	if couldBeFloat {
		t.possibleTypes = append(t.possibleTypes, typeFloatVar)
	}
	t.possibleTypes = append(t.possibleTypes, typeDictionaryVar)
	t.typ = t.possibleTypes[0]
	return t
}

// isVar reports whether the token's current interpretation is a variable.
func (t *queryToken) isVar() bool {
	switch t.typ {
	case typeIntVar, typeFloatVar, typeDictionaryVar:
		return true
	}
	return false
}

// isAmbiguous reports whether the token has more than one interpretation.
func (t *queryToken) isAmbiguous() bool {
	return len(t.possibleTypes) > 1
}

// changeToNextPossibleType advances to the next interpretation, wrapping
// around. Returns false once it has wrapped (all combinations visited for
// this token).
func (t *queryToken) changeToNextPossibleType() bool {
	if t.currentTypeIx < len(t.possibleTypes)-1 {
		t.currentTypeIx++
		t.typ = t.possibleTypes[t.currentTypeIx]
		return true
	}
	t.currentTypeIx = 0
	if len(t.possibleTypes) > 0 {
		t.typ = t.possibleTypes[0]
	}
	return false
}

// unescape removes the escape characters from a token value, yielding the
// literal string for exact dictionary lookups.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		out = append(out, s[i])
	}
	return string(out)
}

func couldBeExactInt(s string) bool {
	s = unescape(s)
	if len(s) == 0 {
		return false
	}
	if s[0] == '-' {
		s = s[1:]
	}
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strutil.IsDecimalDigit(s[i]) {
			return false
		}
	}
	return true
}

func couldBeExactFloat(s string) bool {
	s = unescape(s)
	if len(s) == 0 {
		return false
	}
	if s[0] == '-' {
		s = s[1:]
	}
	points := 0
	digits := 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '.':
			points++
		case strutil.IsDecimalDigit(s[i]):
			digits++
		default:
			return false
		}
	}
	return points == 1 && digits > 0
}

func isDigitsAndWildcards(s string) bool {
	hasNonWildcard := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strutil.IsWildcard(c) {
			continue
		}
		if !strutil.IsDecimalDigit(c) && c != '-' {
			return false
		}
		hasNonWildcard = true
	}
	return hasNonWildcard
}

func isFloatCharsAndWildcards(s string) bool {
	hasNonWildcard := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strutil.IsWildcard(c) {
			continue
		}
		if !strutil.IsDecimalDigit(c) && c != '-' && c != '.' {
			return false
		}
		hasNonWildcard = true
	}
	return hasNonWildcard
}
