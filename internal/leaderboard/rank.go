package leaderboard

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/quizpath/quizpath/internal/domain"
)

const (
	// topSize is the number of leading entries always included in a window.
	topSize = 3
	// windowSize is the number of entries shown on each side of the target
	// user in the nearby band.
	windowSize = 5
)

// Accuracy returns correct/total as a whole percentage. Halves round up
// (62.5% -> 63). A user without attempts has accuracy 0.
func Accuracy(correct, total int) int {
	if total == 0 {
		return 0
	}

	pct := decimal.NewFromInt(int64(correct) * 100).
		Div(decimal.NewFromInt(int64(total))).
		Round(0)
	return int(pct.IntPart())
}

// Rank orders users by score descending, breaking ties by name ascending
// (case-sensitive), and assigns 1-based positions. The comparator is a total
// order, so positions are a permutation of 1..len(stats) and stable across
// recomputation for unchanged input.
func Rank(stats []domain.UserStats, currentUserID string) []domain.LeaderboardEntry {
	sorted := append([]domain.UserStats(nil), stats...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Name < sorted[j].Name
	})

	entries := make([]domain.LeaderboardEntry, 0, len(sorted))
	for i, st := range sorted {
		entries = append(entries, domain.LeaderboardEntry{
			Position:         i + 1,
			UserID:           st.UserID,
			Name:             st.Name,
			Score:            st.Score,
			CompletedCourses: st.FinishedCourses,
			Statistics: domain.AttemptStats{
				TotalAttempts:  st.TotalAttempts,
				CorrectAnswers: st.CorrectAttempts,
				Accuracy:       Accuracy(st.CorrectAttempts, st.TotalAttempts),
			},
			IsCurrentUser: st.UserID == currentUserID,
		})
	}
	return entries
}

// Window cuts the ranked list into the top entries and a band around the
// target index. The band is clamped to start no earlier than the top block
// and to end at the list length; the same clamp applies when the target is
// inside the top block, which can shrink the band or make it overlap the
// remaining top entries.
func Window(entries []domain.LeaderboardEntry, target int) (top, nearby []domain.LeaderboardEntry) {
	top = entries[:min(topSize, len(entries))]

	lo := max(topSize, target-windowSize)
	hi := min(len(entries), target+windowSize+1)
	if lo > hi {
		lo = hi
	}
	nearby = entries[lo:hi]
	return top, nearby
}
