package export

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/repository"
	"github.com/joseph-ayodele/docintake/internal/utils"
)

type listFunc func(ctx context.Context, f repository.JobFilter) ([]*entity.ProcessingJob, error)

func (fn listFunc) List(ctx context.Context, f repository.JobFilter) ([]*entity.ProcessingJob, error) {
	return fn(ctx, f)
}

func TestExportJobsXLSX(t *testing.T) {
	assetID := "a-1"
	ext, _ := json.Marshal(entity.ExtractionResult{
		Classification:        "fire_certificate",
		Title:                 "Fire Risk Assessment",
		InspectionOrIssueDate: utils.StrPtr("2024-01-15"),
		NextDueDate:           utils.StrPtr("2025-01-15"),
		Confidence:            0.8,
	})
	sum, _ := json.Marshal(entity.JobSummary{Compliance: &entity.ComplianceAssetMatch{
		AssetID:   &assetID,
		AssetName: "Fire Risk Assessment",
		Reminder:  &entity.Reminder{Date: "2024-12-16"},
	}})
	code := constants.ErrCodeStorageUnavailable
	jobs := []*entity.ProcessingJob{
		{ID: uuid.New(), Filename: "fra.pdf", Status: constants.JobStatusReady, Extraction: ext, Summary: sum, CreatedAt: time.Now()},
		{ID: uuid.New(), Filename: "scan.png", Status: constants.JobStatusFailed, ErrorCode: &code, ErrorMessage: utils.StrPtr("bucket down"), CreatedAt: time.Now()},
	}

	var gotFilter repository.JobFilter
	svc := NewService(listFunc(func(_ context.Context, f repository.JobFilter) ([]*entity.ProcessingJob, error) {
		gotFilter = f
		return jobs, nil
	}), nil)

	data, err := svc.ExportJobsXLSX(context.Background(), repository.JobFilter{OwnerUserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", gotFilter.OwnerUserID)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, "fra.pdf", rows[1][1])
	assert.Equal(t, "fire_certificate", rows[1][3])
	assert.Equal(t, "2025-01-15", rows[1][6])
	assert.Equal(t, "Fire Risk Assessment", rows[1][7])
	assert.Equal(t, "2024-12-16", rows[1][8])
	assert.Equal(t, "FAILED", rows[2][2])
	assert.Equal(t, "STORAGE_UNAVAILABLE: bucket down", rows[2][len(rows[2])-1])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
