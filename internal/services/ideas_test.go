package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ideabox/internal/models"
	"ideabox/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ideaClock = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func validIdea(deadline time.Time) NewIdea {
	return NewIdea{
		Title:       "Meeting-free Fridays",
		Description: `<p>No meetings on <b>Friday</b> afternoons</p><script>alert(1)</script>`,
		Deadline:    deadline,
		CategoryIDs: []uint{1, 2, 2},
	}
}

func TestCreateIdea(t *testing.T) {
	f := newFixture(t)
	f.ideas.now = func() time.Time { return ideaClock }
	ctx := context.Background()
	creator := f.user(t, "alice", false)
	bob := f.user(t, "bob", false)

	in := validIdea(ideaClock.Add(72 * time.Hour))
	in.ParticipantIDs = []uint{bob.ID, bob.ID, creator.ID}
	in.CreatorID = &creator.ID

	idea, err := f.ideas.Create(ctx, Actor{UserID: creator.ID}, in)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, idea.StatusID)
	assert.True(t, idea.CreatedAt.Equal(ideaClock))
	assert.NotContains(t, idea.Description, "script")
	assert.Contains(t, idea.Description, "<b>Friday</b>")

	cats, err := f.ideas.Categories(ctx, idea.ID)
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	participants, err := f.ideas.Participants(ctx, idea.ID)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, creator.ID, participants[0].UserID)
	assert.True(t, participants[0].IsCreator)
	assert.Equal(t, bob.ID, participants[1].UserID)
	assert.False(t, participants[1].IsCreator)

	c, err := f.ideas.Creator(ctx, idea.ID)
	require.NoError(t, err)
	assert.Equal(t, creator.Mail, c.Mail)
}

func TestCreateIdeaValidation(t *testing.T) {
	f := newFixture(t)
	f.ideas.now = func() time.Time { return ideaClock }
	ctx := context.Background()
	creator := f.user(t, "alice", false)
	actor := Actor{UserID: creator.ID}

	tests := []struct {
		name  string
		edit  func(*NewIdea)
		field string
	}{
		{"short title", func(in *NewIdea) { in.Title = "ab" }, "title"},
		{"empty description", func(in *NewIdea) { in.Description = "<p> <br> </p>" }, "description"},
		{"past deadline", func(in *NewIdea) { in.Deadline = ideaClock.Add(-time.Hour) }, "deadline"},
		{"deadline centuries away", func(in *NewIdea) { in.Deadline = ideaClock.AddDate(300, 0, 0) }, "deadline"},
		{"no category", func(in *NewIdea) { in.CategoryIDs = nil }, "categories"},
		{"unknown category", func(in *NewIdea) { in.CategoryIDs = []uint{999} }, "categories"},
		{"unknown participant", func(in *NewIdea) { in.ParticipantIDs = []uint{999} }, "participants"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validIdea(ideaClock.Add(72 * time.Hour))
			tt.edit(&in)
			_, err := f.ideas.Create(ctx, actor, in)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}

	other := creator.ID + 1
	in := validIdea(ideaClock.Add(72 * time.Hour))
	in.CreatorID = &other
	_, err := f.ideas.Create(ctx, actor, in)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Zero(t, f.count(t, &models.Idea{}, "1 = 1"))
}

func TestGetIdeaCarriesPhasesAndPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.user(t, "alice", false)
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	idea := f.idea(t, creator.ID, created, created.Add(72*time.Hour))

	// 第二阶段: 评论已关闭, 仍可投票
	f.ideas.now = func() time.Time { return created.Add(36 * time.Hour) }
	detail, err := f.ideas.Get(ctx, idea.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Phases)
	assert.True(t, detail.Phases.CommentEnd.Equal(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, detail.Phases.VoteEnd.Equal(time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, workflow.StageVote, detail.Stage)
	assert.Equal(t, workflow.Permissions{VotingAllowed: true, CommentingAllowed: false}, detail.Permissions)
	assert.Equal(t, "pending", detail.Status.Code)
	require.NotNil(t, detail.Creator)
	assert.Equal(t, creator.ID, detail.Creator.ID)

	_, err = f.ideas.Get(ctx, idea.ID+1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListIdeas(t *testing.T) {
	f := newFixture(t)
	f.ideas.now = func() time.Time { return ideaClock }
	ctx := context.Background()
	alice := f.user(t, "alice", false)
	bob := f.user(t, "bob", false)

	var ids []uint
	for i := 0; i < 4; i++ {
		created := ideaClock.Add(-time.Duration(10-i) * 24 * time.Hour)
		ids = append(ids, f.idea(t, alice.ID, created, ideaClock.Add(10*24*time.Hour)).ID)
	}
	bobs := f.idea(t, bob.ID, ideaClock.Add(-time.Hour), ideaClock.Add(48*time.Hour))
	require.NoError(t, f.db.Model(&models.Idea{}).Where("id = ?", ids[0]).Update("status_id", models.StatusValidated).Error)

	all, err := f.ideas.List(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, bobs.ID, all[0].ID, "newest first")
	assert.Equal(t, "Bikes for the whole campus", all[0].Excerpt)

	recent, err := f.ideas.List(ctx, ListQuery{Sort: "recent"})
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	mine, err := f.ideas.List(ctx, ListQuery{UserID: &alice.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 4)

	validated := models.StatusValidated
	done, err := f.ideas.List(ctx, ListQuery{UserID: &alice.ID, StatusID: &validated})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, ids[0], done[0].ID)

	_, err = f.ideas.List(ctx, ListQuery{Sort: "oldest"})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	bad := uint(9)
	_, err = f.ideas.List(ctx, ListQuery{StatusID: &bad})
	assert.True(t, errors.As(err, &verr))
}

func TestListIdeasToValidate(t *testing.T) {
	f := newFixture(t)
	f.ideas.now = func() time.Time { return ideaClock }
	ctx := context.Background()
	alice := f.user(t, "alice", false)

	due := f.idea(t, alice.ID, ideaClock.Add(-72*time.Hour), ideaClock.Add(3*time.Hour))
	f.idea(t, alice.ID, ideaClock.Add(-72*time.Hour), ideaClock.Add(48*time.Hour))
	decided := f.idea(t, alice.ID, ideaClock.Add(-96*time.Hour), ideaClock.Add(-24*time.Hour))
	require.NoError(t, f.db.Model(&decided).Update("status_id", models.StatusRejected).Error)

	cards, err := f.ideas.List(ctx, ListQuery{ToValidate: true})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, due.ID, cards[0].ID)
	require.NotNil(t, cards[0].Creator)
	assert.Equal(t, alice.Firstname, cards[0].Creator.Firstname)
	assert.False(t, cards[0].Permissions.VotingAllowed)
}

func TestTimeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", false)
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	idea := f.idea(t, alice.ID, created, created.Add(72*time.Hour))
	_, _, err := f.votes.Upsert(ctx, idea.ID, alice.ID, true, false)
	assert.ErrorIs(t, err, ErrPhaseClosed)

	require.NoError(t, f.db.Create(&models.Vote{IdeaID: idea.ID, UserID: alice.ID, Agree: true}).Error)

	tl, err := f.ideas.Timeline(ctx, idea.ID)
	require.NoError(t, err)
	require.NotNil(t, tl)
	require.Len(t, tl.Milestones, 4)
	assert.Equal(t, workflow.MilestoneDecision, tl.Milestones[0].Kind)
	assert.Equal(t, workflow.MilestoneCreation, tl.Milestones[3].Kind)
	require.Len(t, tl.Participants, 1)
	assert.EqualValues(t, 1, tl.Votes.AgreeCount)

	// 截止日期早于创建时间时没有时间线
	broken := f.idea(t, alice.ID, created, created.Add(-time.Hour))
	tl, err = f.ideas.Timeline(ctx, broken.ID)
	require.NoError(t, err)
	assert.Nil(t, tl)
}

func TestTransferIdeasToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", false)
	idea := f.openIdea(t, alice.ID)
	// 占位用户已是参与者
	require.NoError(t, f.db.Create(&models.UserIdea{UserID: f.orphanID, IdeaID: idea.ID}).Error)
	f.openIdea(t, alice.ID)

	moved, err := f.ideas.TransferToOwner(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
	assert.EqualValues(t, 2, f.count(t, &models.UserIdea{}, "user_id = ? AND is_creator = ?", f.orphanID, true))
	assert.Zero(t, f.count(t, &models.UserIdea{}, "user_id = ? AND is_creator = ?", alice.ID, true))

	_, err = f.ideas.Creator(ctx, idea.ID)
	require.NoError(t, err)
	participants, err := f.ideas.Participants(ctx, idea.ID)
	require.NoError(t, err)
	for _, p := range participants {
		assert.NotEqual(t, f.orphanID, p.UserID)
	}
}
