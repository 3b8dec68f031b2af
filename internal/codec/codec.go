package codec

import (
	"fmt"

	"github.com/gftdcojp/logvault/internal/types"
)

// VarAdder is the slice of the variable dictionary the encoder needs.
type VarAdder interface {
	AddOccurrence(value string) (id types.VarID, isNew bool, err error)
}

// VarLookup resolves a dictionary slot back to the variable's string form.
// The segment component tells the resolver where the entry is expected to
// live.
type VarLookup func(id types.VarID, segment types.SegmentID) (string, error)

// EncodedMessage is the factored form of one raw message.
type EncodedMessage struct {
	Logtype    []byte
	Vars       []types.EncodedVariable
	DictVarIDs []types.VarID
	// DictSlotIxs are the indices into Vars holding dictionary slots, kept
	// so the segment component can be patched in once the owning file is
	// placed into a segment.
	DictSlotIxs []int
}

// EncodeMessage factors text into a logtype and encoded variables, adding
// dictionary variables to dict as they are seen. Encoding the same text
// twice yields identical results.
func EncodeMessage(text string, dict VarAdder) (EncodedMessage, error) {
	var msg EncodedMessage
	msg.Logtype = make([]byte, 0, len(text))

	lastEnd := 0
	beginPos, endPos := 0, 0
	var found bool
	for {
		beginPos, endPos, found = NextVar(text, beginPos, endPos)
		if !found {
			break
		}
		msg.Logtype = AppendConstant(msg.Logtype, text[lastEnd:beginPos])
		lastEnd = endPos

		token := text[beginPos:endPos]
		if ev, ok := TryEncodeInt(token); ok {
			msg.Logtype = append(msg.Logtype, PlaceholderInteger)
			msg.Vars = append(msg.Vars, ev)
		} else if ev, ok := TryEncodeFloat(token); ok {
			msg.Logtype = append(msg.Logtype, PlaceholderFloat)
			msg.Vars = append(msg.Vars, ev)
		} else {
			id, _, err := dict.AddOccurrence(token)
			if err != nil {
				return EncodedMessage{}, fmt.Errorf("adding variable %q: %w", token, err)
			}
			msg.Logtype = append(msg.Logtype, PlaceholderDictionary)
			msg.Vars = append(msg.Vars, EncodeDictVar(id, 0))
			msg.DictVarIDs = append(msg.DictVarIDs, id)
			msg.DictSlotIxs = append(msg.DictSlotIxs, len(msg.Vars)-1)
		}
	}
	msg.Logtype = AppendConstant(msg.Logtype, text[lastEnd:])
	return msg, nil
}

// DecodeMessage reverses EncodeMessage, reproducing the original text byte
// for byte.
func DecodeMessage(logtype []byte, vars []types.EncodedVariable, lookup VarLookup) (string, error) {
	out := make([]byte, 0, len(logtype)+len(vars)*8)
	varIx := 0
	for i := 0; i < len(logtype); i++ {
		c := logtype[i]
		switch c {
		case PlaceholderEscape:
			if i == len(logtype)-1 {
				return "", fmt.Errorf("%w: dangling escape in logtype", types.ErrCorrupt)
			}
			i++
			out = append(out, logtype[i])
		case PlaceholderInteger:
			if varIx >= len(vars) {
				return "", fmt.Errorf("%w: logtype needs more variables than message has", types.ErrCorrupt)
			}
			out = append(out, DecodeInt(vars[varIx])...)
			varIx++
		case PlaceholderFloat:
			if varIx >= len(vars) {
				return "", fmt.Errorf("%w: logtype needs more variables than message has", types.ErrCorrupt)
			}
			out = append(out, DecodeFloat(vars[varIx])...)
			varIx++
		case PlaceholderDictionary:
			if varIx >= len(vars) {
				return "", fmt.Errorf("%w: logtype needs more variables than message has", types.ErrCorrupt)
			}
			id, segment := DecodeDictVar(vars[varIx])
			value, err := lookup(id, segment)
			if err != nil {
				return "", fmt.Errorf("resolving dictionary variable %d: %w", id, err)
			}
			out = append(out, value...)
			varIx++
		default:
			out = append(out, c)
		}
	}
	return string(out), nil
}
