package services

import (
	"context"
	"errors"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ideabox/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRejectMovesIdeaToHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.user(t, "alice", false)
	idea := f.openIdea(t, creator.ID)

	err := f.decisions.Record(ctx, idea.ID, Decision{Verdict: VerdictReject, Justification: "too costly"})
	require.NoError(t, err)

	history, err := f.decisions.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, idea.ID, history[0].ID)
	assert.Equal(t, models.StatusRejected, history[0].StatusID)
	assert.Equal(t, "rejected", history[0].Status.Code)
	require.NotNil(t, history[0].Justification)
	assert.Equal(t, "too costly", *history[0].Justification)
}

func TestRecordOverwritesPreviousDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.user(t, "alice", false)
	idea := f.openIdea(t, creator.ID)

	require.NoError(t, f.decisions.Record(ctx, idea.ID, Decision{Verdict: VerdictReject, Justification: "too costly"}))

	title := "Shared electric bikes"
	deadline := idea.Deadline.Add(24 * time.Hour)
	require.NoError(t, f.decisions.Record(ctx, idea.ID, Decision{
		Verdict:       VerdictValidate,
		Title:         &title,
		Deadline:      &deadline,
		Justification: "  budget found  ",
	}))

	var got models.Idea
	require.NoError(t, f.db.First(&got, idea.ID).Error)
	assert.Equal(t, models.StatusValidated, got.StatusID)
	assert.Equal(t, title, got.Title)
	assert.True(t, got.Deadline.Equal(deadline))
	// stored as sent
	assert.Equal(t, "  budget found  ", *got.Justification)
}

func TestRecordValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.user(t, "alice", false)
	idea := f.openIdea(t, creator.ID)

	tests := []struct {
		name     string
		decision Decision
		field    string
	}{
		{"short justification", Decision{Verdict: VerdictReject, Justification: " no "}, "justification"},
		{"long justification", Decision{Verdict: VerdictReject, Justification: strings.Repeat("x", 251)}, "justification"},
		{"unknown verdict", Decision{Verdict: "maybe", Justification: "because"}, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.decisions.Record(ctx, idea.ID, tt.decision)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}

	early := idea.CreatedAt.Add(-time.Hour)
	err := f.decisions.Record(ctx, idea.ID, Decision{Verdict: VerdictValidate, Deadline: &early, Justification: "good idea"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "deadline", verr.Fields[0].Field)

	far := idea.CreatedAt.AddDate(300, 0, 0)
	err = f.decisions.Record(ctx, idea.ID, Decision{Verdict: VerdictValidate, Deadline: &far, Justification: "good idea"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "deadline", verr.Fields[0].Field)

	var got models.Idea
	require.NoError(t, f.db.First(&got, idea.ID).Error)
	assert.Equal(t, models.StatusPending, got.StatusID)
	assert.Nil(t, got.Justification)
}

func TestRecordUnknownIdea(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.decisions.Record(ctx, 404, Decision{Verdict: VerdictValidate, Justification: "good idea"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.decisions.Delete(ctx, 404), ErrNotFound)
}

func TestDeleteIdeaCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.user(t, "alice", false)
	participant := f.user(t, "bob", false)
	idea := f.openIdea(t, creator.ID)
	other := f.openIdea(t, creator.ID)

	require.NoError(t, f.db.Create(&models.UserIdea{UserID: participant.ID, IdeaID: idea.ID}).Error)
	require.NoError(t, f.db.Create(&models.CategoryIdea{CategoryID: 1, IdeaID: idea.ID}).Error)
	_, _, err := f.votes.Upsert(ctx, idea.ID, participant.ID, true, false)
	require.NoError(t, err)
	_, _, err = f.votes.Upsert(ctx, other.ID, participant.ID, true, false)
	require.NoError(t, err)
	_, err = f.comments.Add(ctx, Actor{UserID: participant.ID}, idea.ID, "Count me in")
	require.NoError(t, err)
	media, err := f.uploads.Upload(ctx, Actor{UserID: creator.ID}, idea.ID, []*multipart.FileHeader{fileHeader(t, "plan.pdf", pdfBytes)})
	require.NoError(t, err)
	stored := filepath.Join(f.media.Dir(), filepath.Base(media[0].URL))
	require.FileExists(t, stored)

	require.NoError(t, f.decisions.Record(ctx, idea.ID, Decision{Verdict: VerdictDelete, Justification: "duplicate"}))

	for _, model := range []interface{}{&models.Media{}, &models.CategoryIdea{}, &models.UserIdea{}, &models.Vote{}, &models.Comment{}} {
		assert.Zero(t, f.count(t, model, "idea_id = ?", idea.ID), "%T", model)
	}
	assert.Zero(t, f.count(t, &models.Idea{}, "id = ?", idea.ID))
	_, err = os.Stat(stored)
	assert.True(t, os.IsNotExist(err))

	// 其他想法不受影响
	agg, err := f.votes.Aggregate(ctx, other.ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, agg.AgreeCount)
}

func TestVerdictForStatus(t *testing.T) {
	v, ok := VerdictForStatus(models.StatusValidated)
	assert.True(t, ok)
	assert.Equal(t, VerdictValidate, v)

	v, ok = VerdictForStatus(models.StatusRejected)
	assert.True(t, ok)
	assert.Equal(t, VerdictReject, v)

	_, ok = VerdictForStatus(models.StatusPending)
	assert.False(t, ok)
}
