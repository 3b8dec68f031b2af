package search

import (
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/gftdcojp/logvault/internal/codec"
	"github.com/gftdcojp/logvault/internal/dict"
	"github.com/gftdcojp/logvault/internal/strutil"
	"github.com/gftdcojp/logvault/internal/types"
)

// matchability classifies a generated sub-query.
type matchability int

const (
	// mayMatch: the sub-query might match a message
	mayMatch matchability = iota
	// wontMatch: the sub-query has no chance of matching
	wontMatch
	// supersedesAll: the sub-query matches every message
	supersedesAll
)

// ProcessRawQuery plans a wildcard search against the archive's
// dictionaries. The returned query carries one sub-query per viable
// interpretation of the search string; a query with no sub-queries that is
// not match-all cannot match anything.
func ProcessRawQuery(logtypeDict, varDict *dict.View, searchString string,
	searchBeginTs, searchEndTs types.Epochtime, ignoreCase bool) *Query {

	q := &Query{
		SearchBeginTs: searchBeginTs,
		SearchEndTs:   searchEndTs,
		IgnoreCase:    ignoreCase,
	}

	// Surround with '*' for substring semantics, then clean
	processed := strutil.CleanUpWildcardSearchString("*" + searchString + "*")
	q.SearchString = processed

	// Replace non-greedy wildcards with greedy ones; the encoded-variable
	// comparisons below have no non-greedy support. The final wildcard
	// verification still runs with the original string.
	processed = strutil.CleanUpWildcardSearchString(strings.ReplaceAll(processed, "?", "*"))

	var tokens []*queryToken
	beginPos, endPos := 0, 0
	for {
		var isVar, ok bool
		beginPos, endPos, isVar, ok = nextPotentialVar(processed, beginPos, endPos)
		if !ok {
			break
		}
		tokens = append(tokens, newQueryToken(processed, beginPos, endPos, isVar))
	}

	// Tokens with a wildcard in the middle fall back to decompression plus
	// wildcard matching, so they stay out of the ambiguity enumeration.
	var ambiguous []*queryToken
	for _, t := range tokens {
		if !t.hasGreedyWildcardInMiddle && t.isAmbiguous() {
			ambiguous = append(ambiguous, t)
		}
	}

	// One sub-query per combination of ambiguous-token interpretations
	for {
		sq := newSubQuery()
		switch generateLogtypesAndVarsForSubQuery(logtypeDict, varDict, processed, tokens, ignoreCase, sq) {
		case supersedesAll:
			q.subQueries = nil
			q.matchAll = true
			return q
		case mayMatch:
			q.subQueries = append(q.subQueries, sq)
		case wontMatch:
		}

		changed := false
		for _, t := range ambiguous {
			if t.changeToNextPossibleType() {
				changed = true
				break
			}
		}
		if !changed {
			break
		}
	}

	return q
}

// generateLogtypesAndVarsForSubQuery builds the logtype wildcard template
// and variable constraints for the current combination of token types.
func generateLogtypesAndVarsForSubQuery(logtypeDict, varDict *dict.View, processed string,
	tokens []*queryToken, ignoreCase bool, sq *SubQuery) matchability {

	lastTokenEndPos := 0
	var logtype []byte
	for _, t := range tokens {
		logtype = append(logtype, processed[lastTokenEndPos:t.beginPos]...)
		lastTokenEndPos = t.endPos

		switch {
		case t.typ == typeWildcard:
			logtype = append(logtype, '*')
		case t.hasGreedyWildcardInMiddle:
			// Fall back to decompression and wildcard matching rather than
			// interpreting the pieces around each wildcard as their own
			// ambiguous tokens
			sq.markWildcardMatchRequired()
			if !t.isVar() {
				logtype = append(logtype, '*')
			} else {
				logtype = append(logtype, '*', codec.PlaceholderDictionary, '*')
			}
		case !t.isVar():
			logtype = append(logtype, t.value...)
		default:
			if !processVarToken(t, varDict, ignoreCase, sq, &logtype) {
				return wontMatch
			}
		}
	}
	if lastTokenEndPos < len(processed) {
		logtype = append(logtype, processed[lastTokenEndPos:]...)
	}

	// A bare "*" template supersedes every other sub-query — unless it came
	// from a middle-wildcard fallback, in which case the sub-query must
	// survive to force per-message verification.
	if string(logtype) == "*" && !sq.wildcardMatchRequired {
		return supersedesAll
	}

	entries := logtypeDict.EntriesMatchingWildcard(string(logtype), ignoreCase)
	if len(entries) == 0 {
		return wontMatch
	}
	sq.setPossibleLogtypes(entries)
	sq.calculateIDsOfMatchingSegments()
	return mayMatch
}

// processVarToken handles a token whose current interpretation is a
// variable. Returns false when the token cannot match anything.
func processVarToken(t *queryToken, varDict *dict.View, ignoreCase bool,
	sq *SubQuery, logtype *[]byte) bool {

	// Even a precise variable constraint may sit at the wrong position in
	// the message, so candidates are always verified by decompression.
	sq.markWildcardMatchRequired()

	if !t.containsWildcards {
		return encodeAndSearchDictionary(t, varDict, ignoreCase, sq, logtype)
	}

	if t.hasPrefixGreedyWildcard {
		*logtype = append(*logtype, '*')
	}
	switch t.typ {
	case typeFloatVar:
		*logtype = append(*logtype, codec.PlaceholderFloat)
	case typeIntVar:
		*logtype = append(*logtype, codec.PlaceholderInteger)
	default:
		*logtype = append(*logtype, codec.PlaceholderDictionary)
		if t.cannotConvertToNonDictVar {
			// Must be a dictionary variable, so the dictionary must hold a
			// matching entry
			if !wildcardSearchDictionary(t, varDict, ignoreCase, sq) {
				return false
			}
		}
	}
	if t.hasSuffixGreedyWildcard {
		*logtype = append(*logtype, '*')
	}
	return true
}

// encodeAndSearchDictionary constrains an exact variable token: numeric
// tokens become exact encoded values, everything else must be present in
// the variable dictionary.
func encodeAndSearchDictionary(t *queryToken, varDict *dict.View, ignoreCase bool,
	sq *SubQuery, logtype *[]byte) bool {

	value := unescape(t.value)

	if ev, ok := codec.TryEncodeInt(value); ok {
		*logtype = append(*logtype, codec.PlaceholderInteger)
		sq.vars = append(sq.vars, newExactVar(ev))
		return true
	}
	if ev, ok := codec.TryEncodeFloat(value); ok {
		*logtype = append(*logtype, codec.PlaceholderFloat)
		sq.vars = append(sq.vars, newExactVar(ev))
		return true
	}

	ids := roaring.New()
	segs := roaring.New()
	if !ignoreCase {
		e, ok := varDict.Get(value)
		if !ok {
			return false
		}
		ids.Add(uint32(e.ID))
		if e.Segments != nil {
			segs.Or(e.Segments)
		}
	} else {
		entries := varDict.EntriesMatchingWildcard(escapeWildcards(value), true)
		if len(entries) == 0 {
			return false
		}
		for _, e := range entries {
			ids.Add(uint32(e.ID))
			if e.Segments != nil {
				segs.Or(e.Segments)
			}
		}
	}
	*logtype = append(*logtype, codec.PlaceholderDictionary)
	sq.vars = append(sq.vars, newDictVar(ids, segs))
	return true
}

// wildcardSearchDictionary constrains a wildcard token that can only be a
// dictionary variable by the set of entries matching it.
func wildcardSearchDictionary(t *queryToken, varDict *dict.View, ignoreCase bool, sq *SubQuery) bool {
	entries := varDict.EntriesMatchingWildcard(t.value, ignoreCase)
	if len(entries) == 0 {
		return false
	}
	ids := roaring.New()
	segs := roaring.New()
	for _, e := range entries {
		ids.Add(uint32(e.ID))
		if e.Segments != nil {
			segs.Or(e.Segments)
		}
	}
	sq.vars = append(sq.vars, newDictVar(ids, segs))
	return true
}

// escapeWildcards escapes '*', '?' and '\' so a literal value can be used
// as a wildcard pattern.
func escapeWildcards(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '*' || c == '?' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// nextPotentialVar finds the next token in the processed search string,
// reporting whether it is definitely a variable. Unlike the encoder's
// tokenizer it understands wildcards: a token is a variable iff it
// contains a decimal digit, could be a multi-digit hex value, or directly
// follows '=' and contains a letter with no wildcard before that letter.
func nextPotentialVar(value string, beginPos, endPos int) (int, int, bool, bool) {
	length := len(value)
	if endPos >= length {
		return beginPos, endPos, false, false
	}

	isVar := false
	containsWildcard := false
	for !isVar && !containsWildcard && beginPos < length {
		beginPos = endPos

		// Find the next wildcard or non-delimiter
		isEscaped := false
		for ; beginPos < length; beginPos++ {
			c := value[beginPos]
			if isEscaped {
				isEscaped = false
				if !strutil.IsDelim(c) {
					// Escaped non-delimiter: keep the escape character in
					// the token
					beginPos--
					break
				}
			} else if c == '\\' {
				isEscaped = true
			} else {
				if strutil.IsWildcard(c) {
					containsWildcard = true
					break
				}
				if !strutil.IsDelim(c) {
					break
				}
			}
		}

		containsDigit := false
		containsAlphabet := false

		// Find the next delimiter that is not a wildcard
		isEscaped = false
		endPos = beginPos
		for ; endPos < length; endPos++ {
			c := value[endPos]
			if isEscaped {
				isEscaped = false
				if strutil.IsDelim(c) {
					endPos--
					break
				}
			} else if c == '\\' {
				isEscaped = true
			} else {
				if strutil.IsWildcard(c) {
					containsWildcard = true
				} else if strutil.IsDelim(c) {
					break
				}
			}
			if strutil.IsDecimalDigit(c) {
				containsDigit = true
			} else if strutil.IsAlphabet(c) {
				containsAlphabet = true
			}
		}

		if containsDigit || strutil.CouldBeMultiDigitHexValue(value[beginPos:endPos]) {
			isVar = true
		} else if beginPos > 0 && value[beginPos-1] == '=' && containsAlphabet {
			// Check for a wildcard before the first letter
			isEscaped = false
			foundWildcardBeforeAlphabet := false
			for i := beginPos; i < endPos; i++ {
				c := value[i]
				if isEscaped {
					isEscaped = false
					if strutil.IsAlphabet(c) {
						break
					}
				} else if c == '\\' {
					isEscaped = true
				} else if strutil.IsWildcard(c) {
					foundWildcardBeforeAlphabet = true
					break
				} else if strutil.IsAlphabet(c) {
					break
				}
			}
			if !foundWildcardBeforeAlphabet {
				isVar = true
			}
		}
	}

	return beginPos, endPos, isVar, beginPos != length
}
