// Package workflow derives an idea's decision phases from its creation time and
// the decision date chosen by an administrator. Nothing here is persisted: every
// caller recomputes the boundaries from the two stored timestamps.
package workflow

import (
	"errors"
	"time"
)

// ErrInvalidPhases is returned when the decision date does not leave room for
// three non-empty phases after the creation time.
var ErrInvalidPhases = errors.New("workflow: decision must be later than creation")

// ErrSpanTooLong is returned when decision - creation does not fit a
// time.Duration (about 292 years).
var ErrSpanTooLong = errors.New("workflow: decision is too far after creation")

// Phases is the derived boundary set. It always satisfies
// Creation < CommentEnd < VoteEnd < Decision.
type Phases struct {
	Creation   time.Time `json:"creation"`
	CommentEnd time.Time `json:"commentPhaseEnd"`
	VoteEnd    time.Time `json:"votePhaseEnd"`
	Decision   time.Time `json:"decisionTime"`
}

// ComputePhases splits [creation, decision] into thirds.
//
// Arithmetic is done on integer nanoseconds: the first third is rounded to the
// nearest nanosecond and the vote boundary is taken as decision minus that third,
// so the three intervals differ by at most 1ns and identical inputs always give
// identical outputs.
func ComputePhases(creation, decision time.Time) (Phases, error) {
	if creation.IsZero() || decision.IsZero() {
		return Phases{}, ErrInvalidPhases
	}
	span := decision.Sub(creation)
	// 少于 3ns 无法切出三个非空阶段
	if span < 3 {
		return Phases{}, ErrInvalidPhases
	}
	// Sub 在溢出时饱和, 往返不一致说明跨度被截断了
	if !creation.Add(span).Equal(decision) {
		return Phases{}, ErrSpanTooLong
	}

	third := span / 3
	if span%3 == 2 {
		third++
	}
	return Phases{
		Creation:   creation,
		CommentEnd: creation.Add(third),
		VoteEnd:    decision.Add(-third),
		Decision:   decision,
	}, nil
}

// Span returns the total duration covered by the phases.
func (p Phases) Span() time.Duration {
	return p.Decision.Sub(p.Creation)
}

// Current names the phase that contains now. The comment and vote stages follow
// the gate, not the rounded boundaries, so Current always agrees with Evaluate.
func (p Phases) Current(now time.Time) Stage {
	switch {
	case CommentingAllowed(p.Creation, p.Decision, now):
		return StageComment
	case VotingAllowed(p.Creation, p.Decision, now):
		return StageVote
	case now.Before(p.Decision):
		return StageAwaitingDecision
	default:
		return StageDecision
	}
}

type Stage string

const (
	StageComment          Stage = "comment"
	StageVote             Stage = "vote"
	StageAwaitingDecision Stage = "awaiting_decision"
	StageDecision         Stage = "decision"
)
