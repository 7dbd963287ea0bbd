package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaura24/regaudit/internal/types"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return NewRepository(s)
}

func TestRepositoryRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	run := &types.Run{
		ID:        uuid.New(),
		Status:    types.StatusPending,
		Mode:      types.ModeMultiAgent,
		Sources:   []types.SourceRef{{URI: "pages/reg-001", Kind: "store_prefix"}},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.SaveRun(ctx, run))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Equal(t, run.Sources, got.Sources)

	_, err = repo.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	runs, err := repo.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRepositoryEventsAppendOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	runID := uuid.New()

	// No events yet is an empty trail, not an error.
	events, err := repo.GetEvents(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, events)

	for _, stage := range []string{types.StageGatekeeper, types.StageExtractor, types.StageNormalizer} {
		require.NoError(t, repo.AppendEvent(ctx, runID, types.StageEvent{
			Stage:      stage,
			NextAction: types.ActionAutoNext,
			Timestamp:  time.Now().UTC(),
		}))
	}

	events, err = repo.GetEvents(ctx, runID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, types.StageGatekeeper, events[0].Stage)
	assert.Equal(t, types.StageExtractor, events[1].Stage)
	assert.Equal(t, types.StageNormalizer, events[2].Stage)
}

func TestRepositoryArtifacts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	runID := uuid.New()

	assessment := types.Assessment{IsRegister: true, DocumentType: "shareholder register", Confidence: 0.92}
	require.NoError(t, repo.SaveArtifact(ctx, runID, types.StageGatekeeper, types.ArtifactAssessment, &assessment))

	var got types.Assessment
	require.NoError(t, repo.GetArtifactInto(ctx, runID, types.StageGatekeeper, types.ArtifactAssessment, &got))
	assert.Equal(t, assessment, got)

	_, err := repo.GetArtifact(ctx, runID, types.StageAnalyst, types.ArtifactAnswerSet)
	assert.ErrorIs(t, err, ErrNotFound)

	// Same kind under a different stage is a distinct artifact.
	doc := types.NormalizedDoc{Properties: types.DocumentProperties{CompanyName: "A"}}
	require.NoError(t, repo.SaveArtifact(ctx, runID, types.StageNormalizer, types.ArtifactNormalizedDoc, &doc))
	require.NoError(t, repo.SaveArtifact(ctx, runID, types.StageFastExtractor, types.ArtifactNormalizedDoc, &doc))

	all, err := repo.Artifacts(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRepositoryArtifactOverwrite(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	runID := uuid.New()

	require.NoError(t, repo.SaveArtifact(ctx, runID, types.StageFastExtractor, types.ArtifactNormalizedDoc,
		&types.NormalizedDoc{Properties: types.DocumentProperties{CompanyName: "first attempt"}}))
	require.NoError(t, repo.SaveArtifact(ctx, runID, types.StageFastExtractor, types.ArtifactNormalizedDoc,
		&types.NormalizedDoc{Properties: types.DocumentProperties{CompanyName: "second attempt"}}))

	var got types.NormalizedDoc
	require.NoError(t, repo.GetArtifactInto(ctx, runID, types.StageFastExtractor, types.ArtifactNormalizedDoc, &got))
	assert.Equal(t, "second attempt", got.Properties.CompanyName)
}

func TestRepositoryPackets(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	run := &types.Run{ID: uuid.New(), Status: types.StatusHITL, Mode: types.ModeMultiAgent}
	packet := &types.HITLPacket{
		ID:             uuid.New(),
		RunID:          run.ID,
		Stage:          types.StageValidator,
		ReasonCodes:    []types.ReasonCode{types.ReasonSumMismatch},
		RequiredAction: types.DefaultRequiredAction,
		CreatedAt:      time.Now().UTC(),
	}
	run.HITLPacketID = &packet.ID

	require.NoError(t, repo.SavePacket(ctx, packet))
	require.NoError(t, repo.SaveRun(ctx, run))

	got, err := repo.GetPacket(ctx, packet.ID)
	require.NoError(t, err)
	assert.Equal(t, packet.ReasonCodes, got.ReasonCodes)

	byRun, err := repo.GetPacketByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, packet.ID, byRun.ID)

	// A run without an open packet reports not found.
	other := &types.Run{ID: uuid.New(), Status: types.StatusRunning, Mode: types.ModeFast}
	require.NoError(t, repo.SaveRun(ctx, other))
	_, err = repo.GetPacketByRun(ctx, other.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
