package patterns

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wearwatch/catalog-monitor/internal/database"
	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/store"
)

func newTestLearner(t *testing.T) (*Learner, *store.Store) {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, database.Migrate(db, logger))

	s := store.New(db)
	t.Cleanup(func() {
		s.Close()
		db.Close()
	})
	return New(s.Patterns, logger), s
}

func TestRecordOutcomeConfidenceSteps(t *testing.T) {
	l, _ := newTestLearner(t)
	ctx := context.Background()

	// First success: created at 0.7, stepped to 0.75.
	l.RecordOutcome(ctx, "aritzia", models.FunctionExtractor, models.ElementTitle,
		models.PatternKindSelector, "h1.product-name", true)

	got := l.GetRankedPatterns(ctx, "aritzia", models.FunctionExtractor, models.ElementTitle, false)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.75, got[0].Confidence, 1e-9)
	assert.Equal(t, 1, got[0].SuccessCount)

	l.RecordOutcome(ctx, "aritzia", models.FunctionExtractor, models.ElementTitle,
		models.PatternKindSelector, "h1.product-name", false)

	got = l.GetRankedPatterns(ctx, "aritzia", models.FunctionExtractor, models.ElementTitle, false)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.65, got[0].Confidence, 1e-9)
	assert.Equal(t, 1, got[0].SuccessCount)
	assert.Equal(t, 1, got[0].FailureCount)
	assert.NotNil(t, got[0].LastFailedAt)
}

func TestConfidenceCapAndFloor(t *testing.T) {
	l, _ := newTestLearner(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		l.RecordOutcome(ctx, "aritzia", models.FunctionExtractor, models.ElementPrice,
			models.PatternKindSelector, "span.price", true)
	}
	got := l.GetRankedPatterns(ctx, "aritzia", models.FunctionExtractor, models.ElementPrice, false)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Confidence)
	assert.Equal(t, 10, got[0].SuccessCount)

	for i := 0; i < 12; i++ {
		l.RecordOutcome(ctx, "aritzia", models.FunctionExtractor, models.ElementPrice,
			models.PatternKindSelector, "span.price", false)
	}
	got = l.GetRankedPatterns(ctx, "aritzia", models.FunctionExtractor, models.ElementPrice, true)
	require.Len(t, got, 1)
	assert.Equal(t, 0.0, got[0].Confidence)
	// Counters survive the confidence collapse.
	assert.Equal(t, 10, got[0].SuccessCount)
	assert.Equal(t, 12, got[0].FailureCount)
}

func TestRankingFloorFallsBackToFullList(t *testing.T) {
	l, s := newTestLearner(t)
	ctx := context.Background()

	weak := &models.LearnedPattern{
		Retailer: "nordstrom", Function: models.FunctionCrawler,
		ElementType: models.ElementProductLink, Kind: models.PatternKindSelector,
		Payload: "a.dead", Confidence: 0.1,
	}
	weaker := &models.LearnedPattern{
		Retailer: "nordstrom", Function: models.FunctionCrawler,
		ElementType: models.ElementProductLink, Kind: models.PatternKindSelector,
		Payload: "a.deader", Confidence: 0.05,
	}
	require.NoError(t, s.Patterns.Save(ctx, weak))
	require.NoError(t, s.Patterns.Save(ctx, weaker))

	// Everything is below the floor, so the full ranked list comes back.
	got := l.GetRankedPatterns(ctx, "nordstrom", models.FunctionCrawler, models.ElementProductLink, false)
	require.Len(t, got, 2)
	assert.Equal(t, "a.dead", got[0].Payload)

	strong := &models.LearnedPattern{
		Retailer: "nordstrom", Function: models.FunctionCrawler,
		ElementType: models.ElementProductLink, Kind: models.PatternKindSelector,
		Payload: "a.live", Confidence: 0.8,
	}
	require.NoError(t, s.Patterns.Save(ctx, strong))

	got = l.GetRankedPatterns(ctx, "nordstrom", models.FunctionCrawler, models.ElementProductLink, false)
	require.Len(t, got, 1)
	assert.Equal(t, "a.live", got[0].Payload)

	got = l.GetRankedPatterns(ctx, "nordstrom", models.FunctionCrawler, models.ElementProductLink, true)
	assert.Len(t, got, 3)
}

func TestCrossFunctionTransfer(t *testing.T) {
	l, _ := newTestLearner(t)
	ctx := context.Background()

	l.RecordCrossFunctionHint(ctx, "nordstrom", models.FunctionCrawler,
		models.ElementAntiBot, models.PatternKindSelector, "#px-captcha")

	got := l.GetRankedPatterns(ctx, "nordstrom", models.FunctionExtractor, models.ElementAntiBot, false)
	require.Len(t, got, 1)
	assert.Equal(t, transferConfidence, got[0].Confidence)
	assert.Equal(t, string(models.FunctionCrawler), got[0].TransferredFrom)

	// Title is not in the transfer table; nothing is seeded.
	l.RecordCrossFunctionHint(ctx, "nordstrom", models.FunctionExtractor,
		models.ElementTitle, models.PatternKindSelector, "h1")
	assert.Empty(t, l.GetRankedPatterns(ctx, "nordstrom", models.FunctionCrawler, models.ElementTitle, true))
}

func TestTransferDoesNotOverwriteExisting(t *testing.T) {
	l, _ := newTestLearner(t)
	ctx := context.Background()

	// The extractor already learned this selector the hard way.
	for i := 0; i < 4; i++ {
		l.RecordOutcome(ctx, "nordstrom", models.FunctionExtractor, models.ElementAntiBot,
			models.PatternKindSelector, "#px-captcha", true)
	}
	l.RecordCrossFunctionHint(ctx, "nordstrom", models.FunctionCrawler,
		models.ElementAntiBot, models.PatternKindSelector, "#px-captcha")

	got := l.GetRankedPatterns(ctx, "nordstrom", models.FunctionExtractor, models.ElementAntiBot, false)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.9, got[0].Confidence, 1e-9)
	assert.Empty(t, got[0].TransferredFrom)
}

func TestPlaceholderRules(t *testing.T) {
	l, s := newTestLearner(t)
	ctx := context.Background()

	require.NoError(t, s.Patterns.Save(ctx, &models.LearnedPattern{
		Retailer: "revolve", Function: models.FunctionExtractor,
		ElementType: models.ElementImage, Kind: models.PatternKindPlaceholder,
		Payload: "noimage", Confidence: 0.7,
	}))
	require.NoError(t, s.Patterns.Save(ctx, &models.LearnedPattern{
		Retailer: "revolve", Function: models.FunctionExtractor,
		ElementType: models.ElementImage, Kind: models.PatternKindSelector,
		Payload: "img.main", Confidence: 0.7,
	}))

	rules := l.GetPlaceholderRules(ctx, "revolve")
	assert.Equal(t, []string{"noimage"}, rules)
}
