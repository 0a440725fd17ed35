package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeQuestions(n int) []model.PaperQuestion {
	qs := make([]model.PaperQuestion, n)
	for i := range qs {
		qs[i] = model.PaperQuestion{
			ID:   uuid.New(),
			Text: "question",
			Choices: []model.Choice{
				{ID: "A", Text: "alpha"},
				{ID: "B", Text: "beta"},
				{ID: "C", Text: "gamma"},
			},
			OrderNum: i + 1,
		}
	}
	return qs
}

func mustInit(t *testing.T, qs []model.PaperQuestion, duration int) Session {
	t.Helper()
	s, err := Initialize(qs, duration)
	require.NoError(t, err)
	return s
}

func TestInitialize(t *testing.T) {
	qs := makeQuestions(3)
	s := mustInit(t, qs, 60)

	assert.Equal(t, StatusActive, s.Status())
	assert.Equal(t, 0, s.CurrentIndex())
	assert.Equal(t, 60, s.Remaining())
	assert.Empty(t, s.Answers())
	assert.Equal(t, 3, s.Len())
}

func TestInitializeRejectsBadInput(t *testing.T) {
	dup := makeQuestions(2)
	dup[1].ID = dup[0].ID

	noChoices := makeQuestions(1)
	noChoices[0].Choices = nil

	dupChoice := makeQuestions(1)
	dupChoice[0].Choices = []model.Choice{{ID: "A"}, {ID: "A"}}

	cases := map[string]struct {
		qs       []model.PaperQuestion
		duration int
	}{
		"empty questions":    {nil, 60},
		"zero duration":      {makeQuestions(1), 0},
		"negative duration":  {makeQuestions(1), -5},
		"duplicate question": {dup, 60},
		"no choices":         {noChoices, 60},
		"duplicate choice":   {dupChoice, 60},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Initialize(tc.qs, tc.duration)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestZeroSessionIsNotStarted(t *testing.T) {
	var s Session
	assert.Equal(t, StatusNotStarted, s.Status())

	_, err := SelectAnswer(s, uuid.New(), "A")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestSelectAnswerIdempotent(t *testing.T) {
	qs := makeQuestions(2)
	s := mustInit(t, qs, 60)

	first, err := SelectAnswer(s, qs[0].ID, "B")
	require.NoError(t, err)
	second, err := SelectAnswer(first, qs[0].ID, "B")
	require.NoError(t, err)

	assert.Equal(t, first.Answers(), second.Answers())
	assert.Equal(t, map[uuid.UUID]string{qs[0].ID: "B"}, second.Answers())
}

func TestSelectAnswerOverwritesAndDoesNotMutateInput(t *testing.T) {
	qs := makeQuestions(1)
	s := mustInit(t, qs, 60)

	a, err := SelectAnswer(s, qs[0].ID, "A")
	require.NoError(t, err)
	b, err := SelectAnswer(a, qs[0].ID, "C")
	require.NoError(t, err)

	got, _ := a.Answer(qs[0].ID)
	assert.Equal(t, "A", got)
	got, _ = b.Answer(qs[0].ID)
	assert.Equal(t, "C", got)
	assert.Empty(t, s.Answers())
}

func TestSelectAnswerUnknownReference(t *testing.T) {
	qs := makeQuestions(1)
	s := mustInit(t, qs, 60)

	_, err := SelectAnswer(s, uuid.New(), "A")
	assert.ErrorIs(t, err, ErrUnknownReference)

	_, err = SelectAnswer(s, qs[0].ID, "Z")
	assert.ErrorIs(t, err, ErrUnknownReference)
}

func TestOutOfOrderAnsweringKeepsAnswers(t *testing.T) {
	qs := makeQuestions(5)
	orders := [][]int{
		{0, 1, 2, 3, 4},
		{4, 3, 2, 1, 0},
		{2, 0, 4, 1, 3},
		{3, 1, 4, 0, 2},
	}
	choices := []string{"A", "B", "C", "A", "B"}

	for _, order := range orders {
		s := mustInit(t, qs, 60)
		var err error
		for _, i := range order {
			s, err = GoTo(s, i)
			require.NoError(t, err)
			s, err = SelectAnswer(s, qs[i].ID, choices[i])
			require.NoError(t, err)

			// Wander away and back.
			s, err = GoTo(s, (i+2)%len(qs))
			require.NoError(t, err)
			s, err = GoTo(s, i)
			require.NoError(t, err)

			got, ok := s.Answer(qs[i].ID)
			require.True(t, ok)
			assert.Equal(t, choices[i], got)
		}
		assert.Equal(t, len(qs), s.AnsweredCount(), "order %v", order)
	}
}

func TestGoTo(t *testing.T) {
	qs := makeQuestions(3)
	s := mustInit(t, qs, 60)

	s, err := GoTo(s, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentIndex())
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, qs[2].ID, cur.ID)

	_, err = GoTo(s, 3)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = GoTo(s, -1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestTickMonotonicAndFloored(t *testing.T) {
	s := mustInit(t, makeQuestions(1), 3)

	prev := s.Remaining()
	for i := 0; i < 10; i++ {
		s = Tick(s)
		assert.LessOrEqual(t, s.Remaining(), prev)
		assert.GreaterOrEqual(t, s.Remaining(), 0)
		prev = s.Remaining()
	}
	assert.Equal(t, 0, s.Remaining())
	assert.True(t, s.Expired())
}

func TestBeginSubmitIdempotentAndFreezes(t *testing.T) {
	qs := makeQuestions(2)
	s := mustInit(t, qs, 10)
	s = Tick(s)

	submitting, err := BeginSubmit(s)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitting, submitting.Status())

	again, err := BeginSubmit(submitting)
	require.NoError(t, err)
	assert.Equal(t, submitting, again)

	assert.Equal(t, 9, Tick(submitting).Remaining())
	assert.False(t, Tick(submitting).Expired())

	_, err = SelectAnswer(submitting, qs[0].ID, "A")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	_, err = GoTo(submitting, 1)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestSubmitOutcomes(t *testing.T) {
	qs := makeQuestions(2)
	s := mustInit(t, qs, 10)
	s, _ = SelectAnswer(s, qs[1].ID, "C")
	s, _ = BeginSubmit(s)

	failed, err := Fail(s, ErrSubmissionFailure)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status())
	assert.ErrorIs(t, failed.Err(), ErrSubmissionFailure)
	assert.Equal(t, map[uuid.UUID]string{qs[1].ID: "C"}, failed.Answers())

	_, err = BeginSubmit(failed)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	retried, err := Retry(failed)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitting, retried.Status())
	assert.NoError(t, retried.Err())

	done, err := Complete(retried, model.SubmissionResult{Score: 50, CorrectCount: 1, TotalCount: 2})
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, done.Status())
	require.NotNil(t, done.Result())
	assert.Equal(t, 50.0, done.Result().Score)

	_, err = Retry(done)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	_, err = Complete(done, model.SubmissionResult{})
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestPayloadExcludesUnanswered(t *testing.T) {
	qs := makeQuestions(5)
	s := mustInit(t, qs, 60)

	var err error
	s, err = SelectAnswer(s, qs[4].ID, "A")
	require.NoError(t, err)
	s, err = SelectAnswer(s, qs[0].ID, "C")
	require.NoError(t, err)
	s, err = SelectAnswer(s, qs[2].ID, "A")
	require.NoError(t, err)
	s, err = SelectAnswer(s, qs[2].ID, "B")
	require.NoError(t, err)

	assert.Equal(t, []model.AnswerPair{
		{QuestionID: qs[0].ID, ChoiceID: "C"},
		{QuestionID: qs[2].ID, ChoiceID: "B"},
		{QuestionID: qs[4].ID, ChoiceID: "A"},
	}, Payload(s))
}
