package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/middleware"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stemsi/exstem-player/internal/service"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	authorID  = 7
	studentID = 42
	parentID  = 99
)

type fakeTests struct {
	tests map[uuid.UUID]model.Test
}

func (f *fakeTests) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	t, ok := f.tests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (f *fakeTests) ListPublished(context.Context) ([]model.Test, error) {
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

type fakeAccess struct {
	mu      sync.Mutex
	enabled bool
	parents map[int][]int
}

func (f *fakeAccess) IsEnabled(context.Context, uuid.UUID, int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled, nil
}

func (f *fakeAccess) IsParentOf(_ context.Context, parent, student int) (bool, error) {
	for _, id := range f.parents[parent] {
		if id == student {
			return true, nil
		}
	}
	return false, nil
}

type fakeResults struct {
	mu     sync.Mutex
	stored []model.TestResult
}

func (f *fakeResults) Exists(_ context.Context, testID uuid.UUID, student int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.stored {
		if r.TestID == testID && r.StudentID == student {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeResults) ListByStudent(_ context.Context, student int) ([]model.TestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TestResult
	for _, r := range f.stored {
		if r.StudentID == student {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResults) ListByTest(_ context.Context, testID uuid.UUID) ([]model.TestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TestResult
	for _, r := range f.stored {
		if r.TestID == testID {
			out = append(out, r)
		}
	}
	return out, nil
}

// testEnv wires real services over miniredis and in-memory stores.
type testEnv struct {
	mr        *miniredis.Miniredis
	rdb       *redis.Client
	test      model.Test
	questions []model.Question
	access    *fakeAccess
	results   *fakeResults
	auth      *service.AuthService
	papers    *service.PaperService
	player    *service.PlayerService
	monitor   *service.MonitorService
	resultSvc *service.ResultService
	log       zerolog.Logger
}

// newTestEnv seeds one published test with two questions whose correct choice is "B".
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	test := model.Test{
		ID:              uuid.New(),
		Title:           "Ujian IPA",
		AuthorID:        authorID,
		DurationSeconds: 600,
		Status:          model.TestStatusPublished,
	}
	qs := make([]model.Question, 2)
	for i := range qs {
		qs[i] = model.Question{
			ID:     uuid.New(),
			TestID: test.ID,
			Text:   "question",
			Choices: []model.Choice{
				{ID: "A", Text: "alpha"},
				{ID: "B", Text: "beta"},
			},
			CorrectChoiceID: "B",
			OrderNum:        i + 1,
		}
	}

	log := zerolog.Nop()
	env := &testEnv{
		mr:        mr,
		rdb:       rdb,
		test:      test,
		questions: qs,
		access:    &fakeAccess{enabled: true, parents: map[int][]int{parentID: {studentID}}},
		results:   &fakeResults{},
		auth:      service.NewAuthService("test-secret"),
		log:       log,
	}
	env.papers = service.NewPaperService(
		&fakeTests{tests: map[uuid.UUID]model.Test{test.ID: test}},
		&fakeQuestions{byTest: map[uuid.UUID][]model.Question{test.ID: qs}},
		rdb,
		log,
	)
	env.monitor = service.NewMonitorService(rdb, env.results, log)
	env.resultSvc = service.NewResultService(env.results, env.access)
	env.player = service.NewPlayerService(
		env.access,
		env.results,
		env.papers,
		service.NewGradingService(env.papers, log),
		env.monitor,
		rdb,
		service.PlayerConfig{TickInterval: time.Hour, SubmitTimeout: 2 * time.Second},
		log,
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = env.player.CloseAll(ctx)
	})
	return env
}

func (e *testEnv) token(t *testing.T, userID int, role service.Role) string {
	t.Helper()
	tok, err := e.auth.IssueToken(userID, role, time.Minute)
	require.NoError(t, err)
	return tok
}

// engine mounts the handlers the same way the router does.
func (e *testEnv) engine() *gin.Engine {
	r := gin.New()

	student := r.Group("/api/v1/student", middleware.RequireRole(e.auth, service.RoleStudent))
	sh := NewStudentHandler(e.player, e.papers, e.resultSvc, e.log)
	student.GET("/tests/:test_id/paper", sh.GetPaper)
	student.GET("/results", sh.ListResults)

	parent := r.Group("/api/v1/parent", middleware.RequireRole(e.auth, service.RoleParent))
	parent.GET("/children/:student_id/results", NewParentHandler(e.resultSvc, e.log).ListChildResults)

	teacher := r.Group("/api/v1/teacher", middleware.RequireRole(e.auth, service.RoleTeacher, service.RoleAdmin))
	th := NewTeacherHandler(e.papers, e.player, e.monitor, e.log)
	teacher.POST("/tests/:test_id/cache", th.RefreshCache)
	teacher.GET("/tests/:test_id/monitor", th.MonitorSSE)

	sys := NewSystemHandler(nil, e.rdb, e.player, e.log)
	r.GET("/health", sys.Health)
	r.GET("/api/v1/admin/system", middleware.RequireRole(e.auth, service.RoleAdmin), sys.Snapshot)

	ph := NewPlayerHandler(e.player, PlayerLimits{}, nil, e.log)
	r.GET("/ws/v1/student/tests/:test_id/play", middleware.RequireRole(e.auth, service.RoleStudent), ph.Play)
	return r
}
