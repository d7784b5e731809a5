// Package convo implements turn-taking for a multi-speaker voice channel:
// the activation matcher that spots the wake phrase, the gate that grants
// one speaker the floor at a time, and the typed conversation context that
// replaces ad-hoc message lists.
//
// The gate is a two-state machine. In the idle state every transcript is
// checked against the activation phrase; a match claims the floor for that
// transcript's speaker and starts a turn. While a turn is active only the
// owning speaker's transcripts pass, everyone else is discarded. The turn
// ends when the language model appends the end sentinel to a response, or
// when the pipeline resets the gate after a failure.
package convo

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// DefaultSentinel is the token the language model is prompted to append as
// the final whitespace-separated word of its closing response. Matching is
// case-sensitive so ordinary uses of the word do not end the turn.
const DefaultSentinel = "True"

// State is the gate's position in the turn cycle.
type State int

const (
	// StateIdle means no turn is in progress; the gate is listening for
	// the activation phrase from any speaker.
	StateIdle State = iota

	// StateActive means one speaker owns the floor and the gate forwards
	// only that speaker's transcripts.
	StateActive
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Decision is the gate's verdict on one transcript.
type Decision int

const (
	// DecisionDiscard drops the transcript: no turn is active and the
	// activation phrase is absent, or another speaker owns the floor.
	DecisionDiscard Decision = iota

	// DecisionActivate starts a new turn owned by the transcript's
	// speaker. The activating utterance itself is part of the turn.
	DecisionActivate

	// DecisionContinue forwards a transcript from the turn's owner.
	DecisionContinue
)

// String returns the decision name for logs.
func (d Decision) String() string {
	switch d {
	case DecisionDiscard:
		return "discard"
	case DecisionActivate:
		return "activate"
	case DecisionContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// Gate serialises a shared voice channel into turns. All methods are safe
// for concurrent use; in practice the conversation stage is the only
// caller of Admit and EndTurn, with Reset and the accessors also reachable
// from status reporting.
type Gate struct {
	matcher  Matcher
	sentinel string

	mu    sync.Mutex
	state State
	owner string
}

// GateOption configures a [Gate].
type GateOption func(*Gate)

// WithSentinel overrides the end-of-turn sentinel token. Matching stays
// case-sensitive and whole-token.
func WithSentinel(token string) GateOption {
	return func(g *Gate) {
		if token != "" {
			g.sentinel = token
		}
	}
}

// NewGate returns an idle gate using matcher for activation.
func NewGate(matcher Matcher, opts ...GateOption) *Gate {
	g := &Gate{
		matcher:  matcher,
		sentinel: DefaultSentinel,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Owner returns the speaker owning the current turn, or "" when idle.
func (g *Gate) Owner() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner
}

// Admit decides what to do with one transcript, updating the gate state on
// activation.
func (g *Gate) Admit(speakerID, text string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateIdle:
		if g.matcher.Match(text) {
			g.state = StateActive
			g.owner = speakerID
			return DecisionActivate
		}
		return DecisionDiscard
	case StateActive:
		if speakerID == g.owner {
			return DecisionContinue
		}
		// The floor is taken; activation phrases from others do not
		// preempt a running turn.
		return DecisionDiscard
	default:
		return DecisionDiscard
	}
}

// EndTurn inspects a model response for the end sentinel. When the
// sentinel is the last whitespace-separated token, it is stripped, the
// gate returns to idle and ended is true. Otherwise the gate stays active
// and the response is returned with only trailing whitespace removed.
//
// A response consisting solely of the sentinel yields spoken == "": the
// turn ends silently.
func (g *Gate) EndTurn(response string) (spoken string, ended bool) {
	spoken, ended = stripSentinel(response, g.sentinel)
	if ended {
		g.mu.Lock()
		g.state = StateIdle
		g.owner = ""
		g.mu.Unlock()
	}
	return spoken, ended
}

// Reset forces the gate back to idle, abandoning any active turn. Used
// when generation or synthesis fails mid-turn.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateIdle
	g.owner = ""
}

// stripSentinel removes sentinel when it is the final whitespace-separated
// token of response. The check is case-sensitive and token-exact:
// "Goodbye True" ends the turn, "True story" and "GoodbyeTrue" do not.
func stripSentinel(response, sentinel string) (spoken string, ended bool) {
	trimmed := strings.TrimRightFunc(response, unicode.IsSpace)
	if trimmed == sentinel {
		return "", true
	}
	if strings.HasSuffix(trimmed, sentinel) {
		head := trimmed[:len(trimmed)-len(sentinel)]
		if r, _ := utf8.DecodeLastRuneInString(head); unicode.IsSpace(r) {
			return strings.TrimRightFunc(head, unicode.IsSpace), true
		}
	}
	return trimmed, false
}
