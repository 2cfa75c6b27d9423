package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

func TestNewPlayer(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		name      string
		wantName  string
		wantField string
	}{
		"name is trimmed":         {name: "  Alice  ", wantName: "Alice"},
		"50 characters is fine":   {name: strings.Repeat("a", 50), wantName: strings.Repeat("a", 50)},
		"multibyte counts runes":  {name: strings.Repeat("é", 50), wantName: strings.Repeat("é", 50)},
		"blank name":              {name: "   ", wantField: "display_name"},
		"51 characters too long":  {name: strings.Repeat("a", 51), wantField: "display_name"},
		"trim happens before len": {name: " " + strings.Repeat("a", 50) + " ", wantName: strings.Repeat("a", 50)},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			p, err := domain.NewPlayer("p1", "s1", "u1", tt.name, now)
			if tt.wantField != "" {
				require.Error(t, err)
				e := errors.Convert(err)
				require.Len(t, e.Violations, 1)
				assert.Equal(t, tt.wantField, e.Violations[0].Field)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.DisplayName)
			assert.True(t, p.IsActive)
			assert.Equal(t, now, p.JoinedAt)
			assert.Nil(t, p.LeftAt)
		})
	}

	t.Run("missing references", func(t *testing.T) {
		_, err := domain.NewPlayer("p1", "", "", "Alice", now)
		require.Error(t, err)
		assert.Len(t, errors.Convert(err).Violations, 2)
	})
}

func TestPlayer_AddScore(t *testing.T) {
	p, err := domain.NewPlayer("p1", "s1", "u1", "Alice", time.Now())
	require.NoError(t, err)

	require.NoError(t, p.AddScore(10, true))
	require.NoError(t, p.AddScore(5, false))
	assert.Equal(t, 15, p.TotalScore)
	assert.Equal(t, 1, p.CorrectAnswers)

	err = p.AddScore(-1, true)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
	assert.Equal(t, 15, p.TotalScore)
	assert.Equal(t, 1, p.CorrectAnswers)

	require.NoError(t, p.Leave(time.Now()))
	err = p.AddScore(10, true)
	require.ErrorIs(t, err, domain.ErrPlayerInactive)
	assert.Contains(t, err.Error(), "cannot add score to inactive player")
	assert.Equal(t, 15, p.TotalScore)
}

func TestPlayer_Leave(t *testing.T) {
	p, err := domain.NewPlayer("p1", "s1", "u1", "Alice", time.Now())
	require.NoError(t, err)

	at := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	require.NoError(t, p.Leave(at))
	assert.False(t, p.IsActive)
	require.NotNil(t, p.LeftAt)
	assert.Equal(t, at, *p.LeftAt)

	require.ErrorIs(t, p.Leave(at.Add(time.Minute)), domain.ErrPlayerAlreadyLeft)
	assert.Equal(t, at, *p.LeftAt)
}

func TestNewAnswer(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a, err := domain.NewAnswer("s1", domain.Submission{
		AnswerID:         "a1",
		PlayerID:         "p1",
		QuestionID:       "q1",
		SelectedItemID:   "o1",
		IsCorrect:        true,
		PointsEarned:     0,
		TimeTakenSeconds: 0,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, &domain.Answer{
		ID:             "a1",
		SessionID:      "s1",
		PlayerID:       "p1",
		QuestionID:     "q1",
		SelectedItemID: "o1",
		IsCorrect:      true,
		SubmittedAt:    now,
	}, a)

	_, err = domain.NewAnswer("", domain.Submission{PointsEarned: -1, TimeTakenSeconds: -1}, now)
	require.Error(t, err)

	var fields []string
	for _, v := range errors.Convert(err).Violations {
		fields = append(fields, v.Field)
	}
	assert.Equal(t, []string{
		"id", "session_id", "player_id", "question_id", "selected_item_id", "points_earned", "time_taken_seconds",
	}, fields)
}
