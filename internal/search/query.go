package search

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/gftdcojp/logvault/internal/codec"
	"github.com/gftdcojp/logvault/internal/dict"
	"github.com/gftdcojp/logvault/internal/types"
)

// QueryVar is one variable constraint in a sub-query: either an exact
// encoded value (integer or float) or a set of acceptable
// variable-dictionary IDs.
type QueryVar struct {
	isDict bool
	// exact encoded value when !isDict
	encodedVar types.EncodedVariable
	// acceptable dictionary IDs when isDict
	varIDs *roaring.Bitmap
	// union of the segment sets of the acceptable entries
	entrySegments *roaring.Bitmap
}

func newExactVar(ev types.EncodedVariable) QueryVar {
	return QueryVar{encodedVar: ev}
}

func newDictVar(ids, entrySegments *roaring.Bitmap) QueryVar {
	return QueryVar{isDict: true, varIDs: ids, entrySegments: entrySegments}
}

// matches reports whether a message's encoded variable satisfies the
// constraint. Dictionary slots carry the variable ID in their low bits.
func (qv *QueryVar) matches(ev types.EncodedVariable) bool {
	if qv.isDict {
		id, _ := codec.DecodeDictVar(ev)
		return qv.varIDs.Contains(uint32(id))
	}
	return ev == qv.encodedVar
}

// SubQuery is one interpretation of the search string: a set of candidate
// logtypes, ordered variable constraints, and the segments that may hold
// matches.
type SubQuery struct {
	logtypeEntries []*dict.Entry
	logtypeIDs     *roaring.Bitmap
	vars           []QueryVar
	// wildcardMatchRequired forces the final decompress-and-verify step.
	wildcardMatchRequired bool
	// segments that may contain results, from intersecting the segment
	// sets of the matched logtypes and dictionary variables
	segmentIDs *roaring.Bitmap
}

func newSubQuery() *SubQuery {
	return &SubQuery{
		logtypeIDs: roaring.New(),
		segmentIDs: roaring.New(),
	}
}

func (sq *SubQuery) markWildcardMatchRequired() {
	sq.wildcardMatchRequired = true
}

// WildcardMatchRequired reports whether matches must still pass the final
// wildcard verification.
func (sq *SubQuery) WildcardMatchRequired() bool {
	return sq.wildcardMatchRequired
}

// SegmentIDs returns the candidate segments for this sub-query.
func (sq *SubQuery) SegmentIDs() *roaring.Bitmap {
	return sq.segmentIDs
}

func (sq *SubQuery) setPossibleLogtypes(entries []*dict.Entry) {
	sq.logtypeEntries = entries
	for _, e := range entries {
		sq.logtypeIDs.Add(uint32(e.ID))
	}
}

// calculateIDsOfMatchingSegments intersects the segment sets of the
// candidate logtypes with those of every dictionary-variable constraint.
func (sq *SubQuery) calculateIDsOfMatchingSegments() {
	logtypeSegs := roaring.New()
	for _, e := range sq.logtypeEntries {
		if e.Segments != nil {
			logtypeSegs.Or(e.Segments)
		}
	}
	result := logtypeSegs
	for i := range sq.vars {
		qv := &sq.vars[i]
		if !qv.isDict || qv.entrySegments == nil {
			continue
		}
		result.And(qv.entrySegments)
	}
	sq.segmentIDs = result
}

// relevantToSegment reports whether the sub-query may match messages in
// the given segment.
func (sq *SubQuery) relevantToSegment(id types.SegmentID) bool {
	return sq.segmentIDs.Contains(uint32(id))
}

// matchesLogtype reports whether the sub-query admits the logtype.
func (sq *SubQuery) matchesLogtype(id types.LogtypeID) bool {
	return sq.logtypeIDs.Contains(uint32(id))
}

// matchesVars reports whether a message's encoded variables satisfy the
// sub-query's constraints in order. Constraints may be satisfied by any
// subsequence of the message's variables, mirroring the wildcards between
// tokens.
func (sq *SubQuery) matchesVars(vars []types.EncodedVariable) bool {
	if len(vars) < len(sq.vars) {
		return false
	}
	constraintIx := 0
	for varsIx := 0; varsIx < len(vars) && constraintIx < len(sq.vars); varsIx++ {
		if sq.vars[constraintIx].matches(vars[varsIx]) {
			constraintIx++
		}
	}
	return constraintIx == len(sq.vars)
}

// Query is a planned search: the cleaned wildcard string, the time range,
// and the surviving sub-queries.
type Query struct {
	SearchString  string
	SearchBeginTs types.Epochtime
	SearchEndTs   types.Epochtime
	IgnoreCase    bool

	subQueries []*SubQuery
	// matchAll is set when a sub-query's logtype template reduced to "*",
	// superseding all other sub-queries.
	matchAll bool
}

// ContainsSubQueries reports whether any sub-query survived planning.
func (q *Query) ContainsSubQueries() bool {
	return len(q.subQueries) > 0
}

// SubQueries returns the planned sub-queries.
func (q *Query) SubQueries() []*SubQuery {
	return q.subQueries
}

// MatchAll reports whether the query matches every message in range.
func (q *Query) MatchAll() bool {
	return q.matchAll
}

// SearchStringMatchesAll reports whether the cleaned search string is a
// bare "*".
func (q *Query) SearchStringMatchesAll() bool {
	return q.SearchString == "*"
}

// RelevantSegments unions the candidate segments across sub-queries.
func (q *Query) RelevantSegments() *roaring.Bitmap {
	out := roaring.New()
	for _, sq := range q.subQueries {
		out.Or(sq.segmentIDs)
	}
	return out
}

// FindMatchingSubQuery returns the first sub-query relevant to the segment
// whose logtype and variable constraints admit the message.
func (q *Query) FindMatchingSubQuery(segment types.SegmentID, logtypeID types.LogtypeID,
	vars []types.EncodedVariable) *SubQuery {

	for _, sq := range q.subQueries {
		if !sq.relevantToSegment(segment) {
			continue
		}
		if sq.matchesLogtype(logtypeID) && sq.matchesVars(vars) {
			return sq
		}
	}
	return nil
}
