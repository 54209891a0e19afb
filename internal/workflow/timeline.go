package workflow

import (
	"time"

	"ideabox/internal/models"
)

type MilestoneKind string

const (
	MilestoneCreation   MilestoneKind = "creation"
	MilestoneCommentEnd MilestoneKind = "comment_deadline"
	MilestoneVoteEnd    MilestoneKind = "vote_deadline"
	MilestoneDecision   MilestoneKind = "decision"
)

var milestoneLabels = map[MilestoneKind]string{
	MilestoneCreation:   "Idea created",
	MilestoneCommentEnd: "Comment deadline",
	MilestoneVoteEnd:    "Vote deadline",
	MilestoneDecision:   "Decision",
}

type Milestone struct {
	Kind  MilestoneKind `json:"kind"`
	Label string        `json:"label"`
	At    time.Time     `json:"at"`
}

// Timeline is the sidebar view of an idea's workflow. Milestones are ordered
// newest first: decision, vote deadline, comment deadline, creation.
type Timeline struct {
	Milestones   []Milestone          `json:"milestones"`
	Participants []models.Participant `json:"participants"`
	Votes        models.VoteTotals    `json:"votes"`
}

// BuildTimeline assembles the timeline view. It returns nil when the deadline data
// cannot produce phases, so callers render nothing instead of corrupted dates.
func BuildTimeline(creation, decision time.Time, participants []models.Participant, votes models.VoteTotals) *Timeline {
	p, err := ComputePhases(creation, decision)
	if err != nil {
		return nil
	}

	if participants == nil {
		participants = []models.Participant{}
	}

	return &Timeline{
		Milestones: []Milestone{
			newMilestone(MilestoneDecision, p.Decision),
			newMilestone(MilestoneVoteEnd, p.VoteEnd),
			newMilestone(MilestoneCommentEnd, p.CommentEnd),
			newMilestone(MilestoneCreation, p.Creation),
		},
		Participants: participants,
		Votes:        votes,
	}
}

func newMilestone(kind MilestoneKind, at time.Time) Milestone {
	return Milestone{Kind: kind, Label: milestoneLabels[kind], At: at}
}
