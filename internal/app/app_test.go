package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/ingest"
)

func inMemoryConfig(t *testing.T) *common.Config {
	t.Helper()
	t.Setenv("DOCINTAKE_CONFIG", "")
	t.Setenv("EXTRACTORS", "keyword")
	t.Setenv("OCR_STRATEGY_ORDER", "text_layer")
	t.Setenv("PIPELINE_WORKERS", "1")
	cfg, err := common.LoadConfig()
	require.NoError(t, err)
	require.NoError(t, InMemory(cfg))
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewWiresInMemoryPipeline(t *testing.T) {
	ctx := context.Background()
	cfg := inMemoryConfig(t)
	a, err := New(ctx, cfg, NewLogger(true))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"text_layer"}, a.OCR.Strategies())
	assert.Equal(t, []string{"keyword"}, a.Extractor.Extractors())

	checks := a.Checks()
	require.NoError(t, checks["database"](ctx))
	require.NoError(t, checks["kv"](ctx))

	alice := common.Actor{UserID: "alice"}
	res, err := a.Ingest.Upload(ctx, alice, ingest.Upload{
		Data:     []byte("%PDF-1.4\nnot really a pdf\n%%EOF"),
		Filename: "scan.pdf",
	})
	require.NoError(t, err)

	_, err = a.Machine.Advance(ctx, alice, res.JobID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		v, err := a.Machine.Status(ctx, alice, res.JobID)
		return err == nil && v.Status.Terminal()
	}, 10*time.Second, 20*time.Millisecond)

	v, err := a.Machine.Status(ctx, alice, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusReady, v.Status)
}

func TestOpenStoreSeedsCatalog(t *testing.T) {
	ctx := context.Background()
	cfg := inMemoryConfig(t)
	a, err := OpenStore(ctx, cfg, NewLogger(false))
	require.NoError(t, err)
	defer a.Close()

	assets, err := a.Compliance.ListAssets(ctx, "any-building")
	require.NoError(t, err)
	assert.NotEmpty(t, assets)
	assert.Nil(t, a.Machine)
}
