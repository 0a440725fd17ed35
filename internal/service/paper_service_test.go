package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestGetPaperWarmsCacheOnMiss(t *testing.T) {
	mr, rdb := newRedis(t)
	test, qs := seedTest(3, model.TestStatusPublished)
	svc, ft, fq := newPaperService(t, rdb, test)
	fq.byTest[test.ID] = qs

	paper, err := svc.GetPaper(context.Background(), test.ID)
	require.NoError(t, err)
	assert.Equal(t, test.Title, paper.Title)
	assert.Equal(t, 600, paper.DurationSeconds)
	require.Len(t, paper.Questions, 3)
	assert.Equal(t, qs[0].ID, paper.Questions[0].ID)

	raw, err := mr.Get(config.CacheKey.TestPaperKey(test.ID.String()))
	require.NoError(t, err)
	assert.NotContains(t, raw, "correct_choice_id")

	assert.Equal(t, "B", mr.HGet(config.CacheKey.TestAnswerKey(test.ID.String()), qs[1].ID.String()))

	// Second read is served from Redis.
	_, err = svc.GetPaper(context.Background(), test.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ft.gets)
}

func TestGetPaperServesCachedPayload(t *testing.T) {
	mr, rdb := newRedis(t)
	svc, ft, _ := newPaperService(t, rdb)

	testID := uuid.New()
	cached := model.TestPaper{TestID: testID, Title: "cached", DurationSeconds: 30}
	raw, err := json.Marshal(cached)
	require.NoError(t, err)
	require.NoError(t, mr.Set(config.CacheKey.TestPaperKey(testID.String()), string(raw)))

	paper, err := svc.GetPaper(context.Background(), testID)
	require.NoError(t, err)
	assert.Equal(t, "cached", paper.Title)
	assert.Zero(t, ft.gets)
}

func TestGetPaperRejectsUnpublished(t *testing.T) {
	_, rdb := newRedis(t)
	draft, qs := seedTest(1, model.TestStatusDraft)
	svc, _, fq := newPaperService(t, rdb, draft)
	fq.byTest[draft.ID] = qs

	_, err := svc.GetPaper(context.Background(), draft.ID)
	assert.ErrorIs(t, err, ErrTestNotFound)

	_, err = svc.GetPaper(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestWarmRejectsEmptyTest(t *testing.T) {
	_, rdb := newRedis(t)
	test, _ := seedTest(0, model.TestStatusPublished)
	svc, _, _ := newPaperService(t, rdb, test)

	_, _, err := svc.WarmTestCache(context.Background(), &test)
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestGetAnswerKeyFallsBackToDatabase(t *testing.T) {
	_, rdb := newRedis(t)
	test, qs := seedTest(2, model.TestStatusPublished)
	svc, _, fq := newPaperService(t, rdb, test)
	fq.byTest[test.ID] = qs

	key, err := svc.GetAnswerKey(context.Background(), test.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		qs[0].ID.String(): "B",
		qs[1].ID.String(): "B",
	}, key)
}

func TestRefreshCacheChecksAuthor(t *testing.T) {
	mr, rdb := newRedis(t)
	test, qs := seedTest(2, model.TestStatusPublished)
	svc, _, fq := newPaperService(t, rdb, test)
	fq.byTest[test.ID] = qs

	err := svc.RefreshCache(context.Background(), test.ID, test.AuthorID+1)
	assert.ErrorIs(t, err, ErrNotTestAuthor)
	assert.False(t, mr.Exists(config.CacheKey.TestPaperKey(test.ID.String())))

	require.NoError(t, svc.RefreshCache(context.Background(), test.ID, test.AuthorID))
	assert.True(t, mr.Exists(config.CacheKey.TestPaperKey(test.ID.String())))

	require.NoError(t, svc.RefreshCache(context.Background(), test.ID, 0))
}

func TestRefreshCacheEvictsUnpublishedTest(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	test, qs := seedTest(2, model.TestStatusPublished)
	svc, ft, fq := newPaperService(t, rdb, test)
	fq.byTest[test.ID] = qs

	require.NoError(t, svc.PrewarmAllCaches(ctx))
	require.True(t, mr.Exists(config.CacheKey.TestPaperKey(test.ID.String())))

	archived := test
	archived.Status = model.TestStatusArchived
	ft.tests[test.ID] = archived

	require.NoError(t, svc.RefreshCache(ctx, test.ID, test.AuthorID))
	assert.False(t, mr.Exists(config.CacheKey.TestPaperKey(test.ID.String())))
	assert.False(t, mr.Exists(config.CacheKey.TestAnswerKey(test.ID.String())))

	_, err := svc.GetPaper(ctx, test.ID)
	assert.ErrorIs(t, err, ErrTestNotFound)

	err = svc.RefreshCache(ctx, uuid.New(), 0)
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestPrewarmSkipsBrokenTests(t *testing.T) {
	mr, rdb := newRedis(t)
	good, qs := seedTest(2, model.TestStatusPublished)
	empty, _ := seedTest(0, model.TestStatusPublished)
	draft, draftQs := seedTest(1, model.TestStatusDraft)
	svc, _, fq := newPaperService(t, rdb, good, empty, draft)
	fq.byTest[good.ID] = qs
	fq.byTest[draft.ID] = draftQs

	require.NoError(t, svc.PrewarmAllCaches(context.Background()))

	assert.True(t, mr.Exists(config.CacheKey.TestPaperKey(good.ID.String())))
	assert.False(t, mr.Exists(config.CacheKey.TestPaperKey(empty.ID.String())))
	assert.False(t, mr.Exists(config.CacheKey.TestPaperKey(draft.ID.String())))
}
