package models

import (
	"time"
)

// Vote is one voter's current position on one idea.
// idx_vote_idea_user backs the single-row-per-pair rule enforced by the upsert.
type Vote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	IdeaID    uint      `gorm:"not null;uniqueIndex:idx_vote_idea_user" json:"ideaId"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_vote_idea_user;index" json:"userId"`
	Agree     bool      `gorm:"not null" json:"agree"`
	Disagree  bool      `gorm:"not null" json:"disagree"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type VoteTotals struct {
	AgreeCount    int64 `json:"agreeCount"`
	DisagreeCount int64 `json:"disagreeCount"`
}

type VoterChoice struct {
	Agree    bool `json:"agree"`
	Disagree bool `json:"disagree"`
}

type VoteAggregate struct {
	VoteTotals
	VoterChoice *VoterChoice `json:"voterChoice,omitempty"`
}
