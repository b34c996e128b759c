package domain

import (
	"fmt"
	"math"
	"strings"
)

// ScanPolicy selects how the scanner reacts when an attribute's boolean
// value token cannot be located, or when a located token carries a
// suspicious zero logprob. One policy applies uniformly to every attribute
// in a scan; mixing policies within a run would make scores incomparable.
type ScanPolicy string

// Supported scan policies.
const (
	// ScanStrict fails the whole scan with a ScanError on the first
	// attribute that cannot be aligned or that yields a zero logprob.
	ScanStrict ScanPolicy = "strict"

	// ScanLenient records a 0.0 score with an explanatory string for
	// attributes that cannot be aligned, letting the aggregate proceed
	// degraded over the attributes that were located.
	ScanLenient ScanPolicy = "lenient"
)

// structuralTokens are bare JSON delimiters that can never be part of a key
// name. Encountering one aborts the current key accumulation path.
var structuralTokens = map[string]struct{}{
	":": {}, "{": {}, "}": {}, "[": {}, "]": {}, ",": {}, `"`: {},
}

// ScanTokenLogprobs aligns an ordered attribute list against the raw
// token-by-token logprob stream of a JSON evaluation response and returns
// one AttributeScore per attribute.
//
// The scan assumes the response emitted the attribute keys in the same order
// as attributes, each followed by a boolean literal, while the tokenizer may
// have split keys, punctuation, and literals into arbitrary fragments. A
// single forward-only cursor advances through the stream; tokens consumed by
// one attribute are never re-examined for a later one, keeping the scan
// linear in the stream length.
//
// Each attribute is aligned in three phases:
//
//  1. Key location: successive raw tokens are concatenated and normalized
//     (whitespace trimmed, a leading `{"` or `"` and a trailing `"`
//     stripped) until the accumulator equals the attribute name. Overshoot
//     or prefix mismatch abandons the starting position; bare structural
//     delimiters end an accumulation path.
//  2. Colon location: the first token containing ':' after the key. A
//     quoted token or closing brace/bracket first aborts the attribute.
//  3. Value location: the first token whose trimmed, lower-cased,
//     quote-stripped text is exactly "true" or "false". A ',', '}', ']' or
//     new quoted string first aborts the attribute.
//
// The score recorded for an attribute is the raw log-probability of its
// boolean token. A located token with logprob exactly 0.0 is treated as
// evidence that the provider never computed logprobs and is handled per the
// policy, never accepted silently.
func ScanTokenLogprobs(attributes []string, tokens []TokenLogprob, policy ScanPolicy) (ScanOutcome, error) {
	if len(attributes) == 0 {
		return ScanOutcome{}, ErrNoAttributes
	}

	outcome := ScanOutcome{Scores: make([]AttributeScore, 0, len(attributes))}
	cursor := 0

	for _, attr := range attributes {
		score, located, next, err := scanAttribute(attr, tokens, cursor, policy)
		if err != nil {
			return ScanOutcome{}, err
		}

		cursor = next
		if located {
			outcome.Located++
			outcome.Sum += score.Score
		}
		outcome.Scores = append(outcome.Scores, score)
	}

	return outcome, nil
}

// scanAttribute aligns a single attribute starting at the cursor and returns
// its score, whether its value token was located, and the cursor position for
// the next attribute.
func scanAttribute(attr string, tokens []TokenLogprob, cursor int, policy ScanPolicy) (AttributeScore, bool, int, error) {
	keyEnd := locateKey(attr, tokens, cursor)
	if keyEnd < 0 {
		// The key search tried every starting position through the end of
		// the stream, so there is no single aborting position to resume
		// from; the next attribute restarts at the same cursor to stay
		// reachable.
		return settleUnlocated(attr, ScanPhaseKey, cursor, policy)
	}

	valueStart, colonAbort := locateColon(tokens, keyEnd)
	if valueStart < 0 {
		return settleUnlocated(attr, ScanPhaseColon, colonAbort, policy)
	}

	for i := valueStart; i < len(tokens); i++ {
		raw := tokens[i].Token
		trimmed := strings.TrimSpace(raw)
		normalized := strings.ToLower(strings.ReplaceAll(trimmed, `"`, ""))

		if normalized == "true" || normalized == "false" {
			logprob := tokens[i].Logprob
			if math.IsNaN(logprob) || math.IsInf(logprob, 0) {
				return AttributeScore{}, false, 0,
					fmt.Errorf("token %q for %q: %w", raw, attr, ErrMalformedLogprobs)
			}
			if logprob == 0 {
				return settleSuspicious(attr, raw, i+1, policy)
			}

			score := AttributeScore{
				Name:  attr,
				Score: logprob,
				Explanation: fmt.Sprintf("logprob %.6f of token %q for %q",
					logprob, strings.TrimSpace(raw), attr),
			}
			return score, true, i + 1, nil
		}

		// A structural token or a fresh quoted string means the value is
		// not a boolean; the next attribute resumes from this token. The
		// checks run on the trimmed text because tokenizers routinely emit
		// leading whitespace (` "b"`, ` ,`).
		if trimmed == "," || trimmed == "}" || trimmed == "]" ||
			(strings.HasPrefix(trimmed, `"`) && i > valueStart) {
			return settleUnlocated(attr, ScanPhaseValue, i, policy)
		}
	}

	return settleUnlocated(attr, ScanPhaseValue, len(tokens), policy)
}

// locateKey finds the attribute key by concatenating token fragments from
// successive starting positions. It returns the index just past the last
// token of the matched key, or -1 when the key cannot be located.
func locateKey(attr string, tokens []TokenLogprob, cursor int) int {
	for start := cursor; start < len(tokens); start++ {
		var accumulated strings.Builder

		for k := start; k < len(tokens); k++ {
			raw := tokens[k].Token
			if isStructural(raw) {
				// Delimiters end this accumulation path; the outer loop
				// advances the starting position by one token.
				break
			}

			accumulated.WriteString(raw)
			normalized := normalizeKey(accumulated.String())

			if normalized == attr {
				return k + 1
			}
			if len(normalized) > len(attr) || !strings.HasPrefix(attr, normalized) {
				break
			}
		}
	}
	return -1
}

// locateColon finds the first token containing ':' after the key and returns
// the index just past it, with -1 as the second value. When a quoted string
// (a likely next key) or a closing brace/bracket appears before any colon it
// returns -1 and the index of the aborting token, so a lenient scan resumes
// the next attribute there instead of re-examining consumed tokens.
func locateColon(tokens []TokenLogprob, keyEnd int) (int, int) {
	for i := keyEnd; i < len(tokens); i++ {
		trimmed := strings.TrimSpace(tokens[i].Token)
		if strings.Contains(trimmed, ":") {
			return i + 1, -1
		}
		if (strings.HasPrefix(trimmed, `"`) && i > keyEnd) || trimmed == "}" || trimmed == "]" {
			return -1, i
		}
	}
	return -1, len(tokens)
}

// settleUnlocated resolves an attribute whose alignment failed in the given
// phase: lenient policy records a zero score with a "not found" explanation
// and leaves the cursor at the aborting position; strict policy fails.
func settleUnlocated(attr, phase string, cursor int, policy ScanPolicy) (AttributeScore, bool, int, error) {
	if policy == ScanStrict {
		return AttributeScore{}, false, 0, NewScanError(attr, phase, ErrAttributeNotFound)
	}

	score := AttributeScore{
		Name:        attr,
		Score:       0,
		Explanation: fmt.Sprintf("value token for %q not found", attr),
	}
	return score, false, cursor, nil
}

// settleSuspicious resolves a boolean token whose logprob is exactly 0.0.
// Probability 1.0 almost always means logprobs were silently not computed
// upstream, so the token is surfaced rather than scored: strict policy fails,
// lenient policy records an unlocated zero score flagging the token.
func settleSuspicious(attr, token string, next int, policy ScanPolicy) (AttributeScore, bool, int, error) {
	if policy == ScanStrict {
		return AttributeScore{}, false, 0, NewScanError(attr, ScanPhaseValue, ErrSuspiciousLogprob)
	}

	score := AttributeScore{
		Name:  attr,
		Score: 0,
		Explanation: fmt.Sprintf("token %q for %q reported logprob 0.0; "+
			"provider likely did not compute logprobs", strings.TrimSpace(token), attr),
	}
	return score, false, next, nil
}

// isStructural reports whether a raw token is a bare JSON delimiter that
// cannot be part of a key name.
func isStructural(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	_, ok := structuralTokens[trimmed]
	return ok
}

// normalizeKey prepares an accumulated token run for comparison against an
// attribute name: surrounding whitespace is trimmed, then a single leading
// `{"` or `"` and a single trailing `"` are stripped. Partial accumulations
// such as `{"interest` normalize to `interest` so prefix checks work.
func normalizeKey(accumulated string) string {
	s := strings.TrimSpace(accumulated)

	switch {
	case strings.HasPrefix(s, `{"`):
		s = s[2:]
	case strings.HasPrefix(s, `"`):
		s = s[1:]
	}
	if strings.HasSuffix(s, `"`) {
		s = s[:len(s)-1]
	}
	return s
}
