package postgres

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/mocks"
)

func newExportRepo(t *testing.T) (*ExportRepository, *CommentRepository, *mocks.MockArtifactStore) {
	t.Helper()

	comments := NewCommentRepository(testPool)
	artifacts := mocks.NewMockArtifactStore()
	repo := NewExportRepository(ExportRepositoryParams{
		Pool:      testPool,
		Comments:  comments,
		Artifacts: artifacts,
		Logger:    testLogger(),
	})
	return repo, comments, artifacts
}

func TestExportRepository_ExportComments(t *testing.T) {
	ctx := context.Background()
	repo, comments, artifacts := newExportRepo(t)
	resourceID := newResource()
	requester := uuid.New()

	open := addComment(t, comments, resourceID, "Needs, commas")
	done := addComment(t, comments, resourceID, "done")
	_, err := comments.ResolveComment(ctx, done.ID)
	require.NoError(t, err)

	t.Run("csv without resolved comments", func(t *testing.T) {
		var stored []byte
		artifacts.On("PutArtifact", mock.Anything, mock.MatchedBy(func(key string) bool {
			return len(key) > len(resourceID) && key[:len(resourceID)] == resourceID
		}), "text/csv", mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(3).([]byte) }).
			Return(nil).Once()

		exportID, err := repo.ExportComments(ctx, domain.ExportOptions{ResourceID: resourceID, Format: domain.ExportCSV}, requester)
		require.NoError(t, err)
		assert.NotEmpty(t, exportID)

		records, err := csv.NewReader(bytes.NewReader(stored)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, csvHeader, records[0])
		assert.Equal(t, open.ID.String(), records[1][0])
		assert.Equal(t, "Needs, commas", records[1][5])
	})

	t.Run("json with resolved comments", func(t *testing.T) {
		var stored []byte
		artifacts.On("PutArtifact", mock.Anything, mock.Anything, "application/json", mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(3).([]byte) }).
			Return(nil).Once()

		_, err := repo.ExportComments(ctx, domain.ExportOptions{ResourceID: resourceID, Format: domain.ExportJSON, IncludeResolved: true}, requester)
		require.NoError(t, err)

		var exported []domain.Comment
		require.NoError(t, json.Unmarshal(stored, &exported))
		assert.Len(t, exported, 2)
	})

	t.Run("history lists both, newest first", func(t *testing.T) {
		history, err := repo.GetExportHistory(ctx, resourceID)
		require.NoError(t, err)
		require.Len(t, history, 2)

		assert.Equal(t, domain.ExportJSON, history[0].Options.Format)
		assert.Equal(t, 2, history[0].CommentCount)
		assert.Equal(t, domain.ExportCSV, history[1].Options.Format)
		assert.Equal(t, 1, history[1].CommentCount)
		assert.Equal(t, requester, history[1].RequestedBy)
		assert.Equal(t, ObjectKey(resourceID, history[1].ID, domain.ExportCSV), history[1].ObjectKey)
	})

	t.Run("failed upload records nothing", func(t *testing.T) {
		other := newResource()
		addComment(t, comments, other, "pending")
		artifacts.On("PutArtifact", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("bucket unavailable")).Once()

		_, err := repo.ExportComments(ctx, domain.ExportOptions{ResourceID: other, Format: domain.ExportCSV}, requester)
		require.Error(t, err)

		history, err := repo.GetExportHistory(ctx, other)
		require.NoError(t, err)
		assert.Empty(t, history)
		artifacts.AssertNotCalled(t, "DeleteArtifact", mock.Anything, mock.Anything)
	})

	t.Run("artifact is removed when the record does not commit", func(t *testing.T) {
		other := newResource()
		addComment(t, comments, other, "pending")

		cancelCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var storedKey string
		artifacts.On("PutArtifact", mock.Anything, mock.Anything, "text/csv", mock.Anything).
			Run(func(args mock.Arguments) {
				storedKey = args.String(1)
				cancel()
			}).
			Return(nil).Once()
		artifacts.On("DeleteArtifact", mock.Anything, mock.MatchedBy(func(key string) bool { return key == storedKey })).
			Return(nil).Once()

		_, err := repo.ExportComments(cancelCtx, domain.ExportOptions{ResourceID: other, Format: domain.ExportCSV}, requester)
		require.Error(t, err)

		history, err := repo.GetExportHistory(ctx, other)
		require.NoError(t, err)
		assert.Empty(t, history)
		artifacts.AssertCalled(t, "DeleteArtifact", mock.Anything, storedKey)
	})
}

func TestExportRepository_ScheduleExport(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newExportRepo(t)

	runAt := time.Now().Add(time.Hour).UTC()
	schedule := domain.ExportSchedule{
		ID:          uuid.NewString(),
		Options:     domain.ExportOptions{ResourceID: newResource(), Format: domain.ExportJSON},
		RunAt:       runAt,
		RequestedBy: uuid.New(),
	}

	saved, err := repo.ScheduleExport(ctx, schedule)
	require.NoError(t, err)
	assert.Equal(t, schedule.ID, saved.ID)
	assert.WithinDuration(t, runAt, saved.RunAt, time.Millisecond)
}

func TestRenderExport_UnknownFormat(t *testing.T) {
	_, _, err := renderExport("pdf", nil)
	assert.Error(t, err)
}
