package repository

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/utils"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *entsql.Driver {
	t.Helper()
	ctx := context.Background()
	drv, err := OpenSQLite(ctx, ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	require.NoError(t, Migrate(ctx, drv, testLogger()))
	return drv
}

func newJob(owner string) *entity.ProcessingJob {
	return &entity.ProcessingJob{
		OwnerUserID:   owner,
		Filename:      "fra.pdf",
		ByteSize:      1024,
		MIMEType:      constants.MIMEPDF,
		StorageKey:    "jobs/fra.pdf",
		ContentSHA256: "abc123",
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	drv := openTestDB(t)
	require.NoError(t, Migrate(context.Background(), drv, testLogger()))
}

func TestJobs_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), testLogger())

	j := newJob("user-1")
	j.BuildingID = utils.StrPtr("bldg-1")
	require.NoError(t, repo.Create(ctx, j))
	require.NotEqual(t, uuid.Nil, j.ID)

	got, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusQueued, got.Status)
	assert.Equal(t, "user-1", got.OwnerUserID)
	assert.Equal(t, "bldg-1", got.BuildingIDValue())
	assert.Nil(t, got.AgencyID)
	assert.Nil(t, got.RawText)
	assert.False(t, got.Claimed())
	assert.WithinDuration(t, j.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = repo.Get(ctx, uuid.New())
	assert.True(t, IsNotFound(err))
}

func TestJobs_ClaimCommitLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), testLogger())
	j := newJob("user-1")
	require.NoError(t, repo.Create(ctx, j))
	now := time.Now()

	tok := uuid.New()
	ok, err := repo.Claim(ctx, j.ID, constants.JobStatusQueued, tok, now)
	require.NoError(t, err)
	require.True(t, ok)

	// a second worker loses
	ok, err = repo.Claim(ctx, j.ID, constants.JobStatusOCR, uuid.New(), now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := repo.Get(ctx, j.ID)
	assert.Equal(t, constants.JobStatusOCR, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	require.NotNil(t, got.ClaimToken)
	assert.Equal(t, tok, *got.ClaimToken)

	// commit with the wrong token is a no-op
	ok, err = repo.Commit(ctx, j.ID, constants.JobStatusOCR, uuid.New(), StageCommit{To: constants.JobStatusExtract}, now)
	require.NoError(t, err)
	assert.False(t, ok)

	pages := 2
	attempts, _ := json.Marshal([]entity.OCRAttempt{{Strategy: "text_layer", Outcome: entity.OCROutcomeSuccess}})
	ok, err = repo.Commit(ctx, j.ID, constants.JobStatusOCR, tok, StageCommit{
		To:          constants.JobStatusExtract,
		RawText:     utils.StrPtr("recovered text"),
		SetRawText:  true,
		PageCount:   &pages,
		OCRAttempts: attempts,
	}, now)
	require.NoError(t, err)
	require.True(t, ok)

	got, _ = repo.Get(ctx, j.ID)
	assert.Equal(t, constants.JobStatusExtract, got.Status)
	assert.Equal(t, "recovered text", *got.RawText)
	assert.Equal(t, 2, got.PageCount)
	assert.JSONEq(t, string(attempts), string(got.OCRAttempts))
	assert.Nil(t, got.ClaimToken)
	assert.Nil(t, got.ClaimedAt)

	// replaying the same commit after it landed changes nothing
	ok, err = repo.Commit(ctx, j.ID, constants.JobStatusOCR, tok, StageCommit{To: constants.JobStatusExtract}, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobs_FailAndReprocess(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), testLogger())
	j := newJob("user-1")
	require.NoError(t, repo.Create(ctx, j))
	now := time.Now()

	tok := uuid.New()
	_, _ = repo.Claim(ctx, j.ID, constants.JobStatusQueued, tok, now)
	ok, err := repo.Fail(ctx, j.ID, constants.JobStatusOCR, tok, constants.ErrCodeStorageUnavailable, "bucket down", now)
	require.NoError(t, err)
	require.True(t, ok)

	got, _ := repo.Get(ctx, j.ID)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Equal(t, constants.ErrCodeStorageUnavailable, *got.ErrorCode)
	assert.Equal(t, "bucket down", *got.ErrorMessage)

	ok, err = repo.Reprocess(ctx, j.ID, constants.JobStatusFailed, constants.JobStatusOCR, now)
	require.NoError(t, err)
	require.True(t, ok)

	got, _ = repo.Get(ctx, j.ID)
	assert.Equal(t, constants.JobStatusOCR, got.Status)
	assert.Nil(t, got.ErrorCode)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, 2, got.AttemptCount)

	// only from the expected status
	ok, err = repo.Reprocess(ctx, j.ID, constants.JobStatusFailed, constants.JobStatusOCR, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobs_StuckDetection(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), testLogger())
	j := newJob("user-1")
	require.NoError(t, repo.Create(ctx, j))

	claimedAt := time.Now().Add(-time.Hour)
	tok := uuid.New()
	_, _ = repo.Claim(ctx, j.ID, constants.JobStatusQueued, tok, claimedAt)

	fresh := newJob("user-1")
	require.NoError(t, repo.Create(ctx, fresh))
	_, _ = repo.Claim(ctx, fresh.ID, constants.JobStatusQueued, uuid.New(), time.Now())

	cutoff := time.Now().Add(-30 * time.Minute)
	stuck, err := repo.ListStuck(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, j.ID, stuck[0].ID)

	ok, err := repo.FailStuck(ctx, fresh.ID, cutoff, constants.ErrCodeStageTimeout, "stuck", time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "fresh claim is not stuck")

	ok, err = repo.FailStuck(ctx, j.ID, cutoff, constants.ErrCodeStageTimeout, "stuck", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	// the original worker's late commit loses
	ok, err = repo.Commit(ctx, j.ID, constants.JobStatusOCR, tok, StageCommit{To: constants.JobStatusExtract}, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := repo.Get(ctx, j.ID)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Equal(t, constants.ErrCodeStageTimeout, *got.ErrorCode)
}

func TestJobs_ListPendingAndDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), testLogger())

	first := newJob("user-1")
	first.Status = constants.JobStatusReady
	require.NoError(t, repo.Create(ctx, first))
	second := newJob("user-1")
	require.NoError(t, repo.Create(ctx, second))
	other := newJob("user-2")
	other.Status = constants.JobStatusReady
	require.NoError(t, repo.Create(ctx, other))

	pending, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	dup, err := repo.FindByHash(ctx, "user-1", "abc123", second.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, dup.ID)

	_, err = repo.FindByHash(ctx, "user-1", "abc123", first.ID)
	assert.True(t, IsNotFound(err))

	ready, err := repo.ListReady(ctx, "user-1", second.ID, 0)
	require.NoError(t, err)
	assert.Len(t, ready, 1)

	listed, err := repo.List(ctx, JobFilter{OwnerUserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	deleted, err := repo.Delete(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.Delete(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCompliance_SeedLinkRemind(t *testing.T) {
	ctx := context.Background()
	drv := openTestDB(t)
	jobs := NewJobRepository(drv, testLogger())
	repo := NewComplianceRepository(drv, testLogger())

	master := []entity.ComplianceAsset{
		{ID: "a-fra", Key: "fire-risk-assessment", Name: "Fire Risk Assessment", Category: "Fire Safety", FrequencyMonths: 12, Aliases: []string{"fra"}},
		{ID: "a-gas", Key: "gas-safety-certificate", Name: "Gas Safety Certificate", Category: "Gas Safety", FrequencyMonths: 12},
	}
	require.NoError(t, repo.SeedAssets(ctx, "", master))
	require.NoError(t, repo.SeedAssets(ctx, "", master))
	require.NoError(t, repo.SeedAssets(ctx, "bldg-1", []entity.ComplianceAsset{
		{ID: "a-lift-b1", Key: "lift", Name: "Lift Examination", Category: "Lifts", FrequencyMonths: 6},
	}))

	assets, err := repo.ListAssets(ctx, "")
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, []string{"fra"}, assets[0].Aliases)

	assets, err = repo.ListAssets(ctx, "bldg-1")
	require.NoError(t, err)
	assert.Len(t, assets, 3)

	j := newJob("user-1")
	require.NoError(t, jobs.Create(ctx, j))
	link, err := repo.Link(ctx, entity.ComplianceLink{
		JobID:          j.ID,
		BuildingID:     "bldg-1",
		AssetID:        "a-fra",
		DueDate:        utils.StrPtr("2025-01-15"),
		ReminderDate:   utils.StrPtr("2024-12-16"),
		ReminderLabel:  "Renew Fire Risk Assessment",
		ReminderReason: "Fire Risk Assessment due on 2025-01-15",
	})
	require.NoError(t, err)
	assert.NotZero(t, link.ID)

	// relinking replaces rather than duplicates
	_, err = repo.Link(ctx, entity.ComplianceLink{JobID: j.ID, BuildingID: "bldg-1", AssetID: "a-fra",
		DueDate: utils.StrPtr("2025-01-15"), ReminderDate: utils.StrPtr("2024-12-16")})
	require.NoError(t, err)
	links, err := repo.LinksForJob(ctx, j.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)

	before, _ := time.Parse(time.DateOnly, "2024-12-01")
	due, err := repo.DueReminders(ctx, before)
	require.NoError(t, err)
	assert.Empty(t, due)

	after, _ := time.Parse(time.DateOnly, "2024-12-16")
	due, err = repo.DueReminders(ctx, after)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, j.ID, due[0].JobID)

	require.NoError(t, repo.MarkNotified(ctx, due[0].ID, time.Now()))
	due, err = repo.DueReminders(ctx, after)
	require.NoError(t, err)
	assert.Empty(t, due)

	// relinking re-arms the reminder
	_, err = repo.Link(ctx, entity.ComplianceLink{JobID: j.ID, BuildingID: "bldg-1", AssetID: "a-fra",
		DueDate: utils.StrPtr("2025-01-15"), ReminderDate: utils.StrPtr("2024-12-16")})
	require.NoError(t, err)
	due, err = repo.DueReminders(ctx, after)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, repo.Unlink(ctx, j.ID))
	require.NoError(t, repo.Unlink(ctx, j.ID))
	due, err = repo.DueReminders(ctx, after)
	require.NoError(t, err)
	assert.Empty(t, due)
	_, err = repo.Link(ctx, entity.ComplianceLink{JobID: j.ID, BuildingID: "bldg-1", AssetID: "a-fra"})
	require.NoError(t, err)

	// deleting the job removes its link
	_, err = jobs.Delete(ctx, j.ID)
	require.NoError(t, err)
	links, err = repo.LinksForJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestJobs_IdlePendingJobIsStuck(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), testLogger())
	j := newJob("user-1")
	require.NoError(t, repo.Create(ctx, j))

	// nothing ever claimed it
	future := time.Now().Add(time.Hour)
	stuck, err := repo.ListStuck(ctx, future, 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, j.ID, stuck[0].ID)

	stuck, err = repo.ListStuck(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stuck)

	ok, err := repo.FailStuck(ctx, j.ID, future, constants.ErrCodeStageTimeout, "idle", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	stuck, err = repo.ListStuck(ctx, future, 10)
	require.NoError(t, err)
	assert.Empty(t, stuck, "terminal jobs are never stuck")
}

func TestJobs_Release(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), testLogger())
	j := newJob("user-1")
	require.NoError(t, repo.Create(ctx, j))

	tok := uuid.New()
	_, _ = repo.Claim(ctx, j.ID, constants.JobStatusQueued, tok, time.Now())

	ok, err := repo.Release(ctx, j.ID, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Release(ctx, j.ID, tok, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	pending, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, constants.JobStatusOCR, pending[0].Status)
}
