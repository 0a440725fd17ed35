package service

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-player/internal/model"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type fakeTests struct {
	mu    sync.Mutex
	tests map[uuid.UUID]model.Test
	gets  int
}

func (f *fakeTests) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	t, ok := f.tests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (f *fakeTests) ListPublished(context.Context) ([]model.Test, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Test
	for _, t := range f.tests {
		if t.Status == model.TestStatusPublished {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeQuestions struct {
	byTest map[uuid.UUID][]model.Question
}

func (f *fakeQuestions) ListByTest(_ context.Context, testID uuid.UUID) ([]model.Question, error) {
	return f.byTest[testID], nil
}

// seedTest builds a published test with n questions whose correct choice is "B".
func seedTest(n int, status model.TestStatus) (model.Test, []model.Question) {
	test := model.Test{
		ID:              uuid.New(),
		Title:           "Ujian Matematika",
		AuthorID:        7,
		DurationSeconds: 600,
		Status:          status,
	}
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:     uuid.New(),
			TestID: test.ID,
			Text:   "question",
			Choices: []model.Choice{
				{ID: "A", Text: "alpha"},
				{ID: "B", Text: "beta"},
				{ID: "C", Text: "gamma"},
			},
			CorrectChoiceID: "B",
			OrderNum:        i + 1,
		}
	}
	return test, qs
}

func newPaperService(t *testing.T, rdb *redis.Client, tests ...model.Test) (*PaperService, *fakeTests, *fakeQuestions) {
	t.Helper()
	ft := &fakeTests{tests: make(map[uuid.UUID]model.Test)}
	fq := &fakeQuestions{byTest: make(map[uuid.UUID][]model.Question)}
	for _, test := range tests {
		ft.tests[test.ID] = test
	}
	return NewPaperService(ft, fq, rdb, testLogger()), ft, fq
}
