package domain

import (
	"cmp"
	"slices"
	"time"
)

// Leaderboard is the ranked view of a session's active players. Version is
// the session version the ranking was computed from.
type Leaderboard struct {
	SessionID string             `json:"session_id"`
	Version   int64              `json:"version"`
	Entries   []LeaderboardEntry `json:"entries"`
}

type LeaderboardEntry struct {
	Rank           int       `json:"rank"`
	PlayerID       string    `json:"player_id"`
	UserID         string    `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	TotalScore     int       `json:"total_score"`
	CorrectAnswers int       `json:"correct_answers"`
	JoinedAt       time.Time `json:"joined_at"`
}

// CompareRank orders players by score desc, correct answers desc, join time
// asc, then id. No two distinct players compare equal.
func CompareRank(a, b Player) int {
	if c := cmp.Compare(b.TotalScore, a.TotalScore); c != 0 {
		return c
	}
	if c := cmp.Compare(b.CorrectAnswers, a.CorrectAnswers); c != 0 {
		return c
	}
	if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
		return c
	}

	return cmp.Compare(a.ID, b.ID)
}

func SortByRank(ps []Player) {
	slices.SortStableFunc(ps, CompareRank)
}

// NewLeaderboard numbers already ranked players from 1.
func NewLeaderboard(sessionID string, ranked []Player) Leaderboard {
	l := Leaderboard{
		SessionID: sessionID,
		Entries:   make([]LeaderboardEntry, 0, len(ranked)),
	}

	for i, p := range ranked {
		l.Entries = append(l.Entries, LeaderboardEntry{
			Rank:           i + 1,
			PlayerID:       p.ID,
			UserID:         p.UserID,
			DisplayName:    p.DisplayName,
			TotalScore:     p.TotalScore,
			CorrectAnswers: p.CorrectAnswers,
			JoinedAt:       p.JoinedAt,
		})
	}

	return l
}
