package practice

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/google/uuid"
)

const (
	maxPageSize = 50
	weekDays    = 7
	dateLayout  = "2006-01-02"
)

// SubjectProgress is a user's standing in one subject.
type SubjectProgress struct {
	Subject             string                    `json:"subject"`
	Name                string                    `json:"name"`
	Icon                string                    `json:"icon"`
	Level               int                       `json:"level"`
	XP                  int                       `json:"xp"`
	LevelProgress       progression.LevelProgress `json:"level_progress"`
	ChallengesCompleted int                       `json:"challenges_completed"`
	ChallengesCorrect   int                       `json:"challenges_correct"`
	Accuracy            float64                   `json:"accuracy"`
}

func (s *Service) subjectProgress(p *domain.ProgressState) SubjectProgress {
	sp := SubjectProgress{
		Subject:             p.Subject,
		Name:                p.Subject,
		Level:               p.Level,
		XP:                  p.XP,
		LevelProgress:       progression.ComputeLevelProgress(p.XP),
		ChallengesCompleted: p.ChallengesCompleted,
		ChallengesCorrect:   p.ChallengesCorrect,
		Accuracy:            p.Accuracy(),
	}
	if subj, ok := s.generator.Catalog().Get(p.Subject); ok {
		sp.Name = subj.Name
		sp.Icon = subj.Icon
	}
	return sp
}

// Overview is a user's progress across all subjects.
type Overview struct {
	UserID          string                 `json:"user_id"`
	Subjects        []SubjectProgress      `json:"subjects"`
	TotalXP         int                    `json:"total_xp"`
	OverallLevel    int                    `json:"overall_level"`
	TotalCompleted  int                    `json:"total_completed"`
	TotalCorrect    int                    `json:"total_correct"`
	OverallAccuracy float64                `json:"overall_accuracy"`
	Streak          progression.StreakView `json:"streak"`
}

// Overview summarizes the user's progress in every subject practiced so far.
func (s *Service) Overview(ctx context.Context, userID string) (*Overview, error) {
	states, err := s.store.ListProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	streak, err := s.streaks.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		UserID:   userID,
		Subjects: make([]SubjectProgress, 0, len(states)),
		Streak:   streak,
	}
	for _, p := range states {
		ov.Subjects = append(ov.Subjects, s.subjectProgress(p))
		ov.TotalXP += p.XP
		ov.TotalCompleted += p.ChallengesCompleted
		ov.TotalCorrect += p.ChallengesCorrect
	}
	ov.OverallLevel = progression.Level(ov.TotalXP)
	ov.OverallAccuracy = (&domain.ProgressState{
		ChallengesCompleted: ov.TotalCompleted,
		ChallengesCorrect:   ov.TotalCorrect,
	}).Accuracy()
	return ov, nil
}

// SubjectDetail is a user's progress in one subject with coaching hints.
type SubjectDetail struct {
	SubjectProgress
	WeakTopics            []string `json:"weak_topics"`
	RecommendedDifficulty int      `json:"recommended_difficulty"`
}

// SubjectDetail reports progress, weak topics and the next difficulty for
// one subject. A subject the user never practiced reports a fresh state.
func (s *Service) SubjectDetail(ctx context.Context, userID, subject string) (*SubjectDetail, error) {
	if _, err := s.subject(subject); err != nil {
		return nil, err
	}

	progress, err := s.progressOrNew(ctx, userID, subject)
	if err != nil {
		return nil, err
	}
	weak, err := s.weakTopics(ctx, userID, subject)
	if err != nil {
		return nil, err
	}
	difficulty, err := s.difficulty.NextDifficulty(ctx, userID, subject)
	if err != nil {
		return nil, err
	}

	return &SubjectDetail{
		SubjectProgress:       s.subjectProgress(progress),
		WeakTopics:            weak,
		RecommendedDifficulty: difficulty,
	}, nil
}

// weakTopics returns the most frequently missed topics, most frequent first
// and ties by name.
func (s *Service) weakTopics(ctx context.Context, userID, subject string) ([]string, error) {
	topics, err := s.store.IncorrectTopics(ctx, userID, subject)
	if err != nil {
		return nil, fmt.Errorf("incorrect topics: %w", err)
	}
	return topFrequent(topics, weakTopicLimit), nil
}

func topFrequent(items []string, limit int) []string {
	counts := make(map[string]int)
	for _, item := range items {
		counts[item]++
	}
	out := make([]string, 0, len(counts))
	for item := range counts {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DayActivity is one day of practice.
type DayActivity struct {
	Date           string `json:"date"`
	ChallengesDone int    `json:"challenges_done"`
	XPEarned       int    `json:"xp_earned"`
	Correct        int    `json:"correct"`
}

// WeeklySummary totals a week of practice.
type WeeklySummary struct {
	TotalChallenges int `json:"total_challenges"`
	TotalXP         int `json:"total_xp"`
	ActiveDays      int `json:"active_days"`
}

// WeeklyActivity is the seven days ending today, oldest first.
type WeeklyActivity struct {
	From    string        `json:"from"`
	To      string        `json:"to"`
	Days    []DayActivity `json:"days"`
	Summary WeeklySummary `json:"summary"`
}

// WeeklyActivity buckets the user's submissions of the last seven days by
// civil date. today is a civil date as returned by Today.
func (s *Service) WeeklyActivity(ctx context.Context, userID string, today time.Time) (*WeeklyActivity, error) {
	from := today.AddDate(0, 0, -(weekDays - 1))
	since := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, s.loc)

	subs, err := s.store.SubmissionsSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("submissions since: %w", err)
	}

	days := make([]DayActivity, weekDays)
	for i := range days {
		days[i].Date = from.AddDate(0, 0, i).Format(dateLayout)
	}
	for _, sub := range subs {
		idx := domain.DaysBetween(from, domain.CivilDate(sub.CompletedAt, s.loc))
		if idx < 0 || idx >= weekDays {
			continue
		}
		days[idx].ChallengesDone++
		days[idx].XPEarned += sub.XPEarned
		if sub.IsCorrect {
			days[idx].Correct++
		}
	}

	wa := &WeeklyActivity{
		From: from.Format(dateLayout),
		To:   today.Format(dateLayout),
		Days: days,
	}
	for _, d := range days {
		wa.Summary.TotalChallenges += d.ChallengesDone
		wa.Summary.TotalXP += d.XPEarned
		if d.ChallengesDone > 0 {
			wa.Summary.ActiveDays++
		}
	}
	return wa, nil
}

// HistoryItem is one past submission.
type HistoryItem struct {
	ID             uuid.UUID            `json:"id"`
	ChallengeID    uuid.UUID            `json:"challenge_id"`
	ChallengeTitle string               `json:"challenge_title"`
	ChallengeType  domain.ChallengeType `json:"challenge_type"`
	Subject        string               `json:"subject"`
	SubjectName    string               `json:"subject_name"`
	SubjectIcon    string               `json:"subject_icon"`
	Difficulty     int                  `json:"difficulty"`
	IsCorrect      bool                 `json:"is_correct"`
	CorrectnessPct int                  `json:"correctness_pct"`
	XPEarned       int                  `json:"xp_earned"`
	HintsUsed      int                  `json:"hints_used"`
	CompletedAt    time.Time            `json:"completed_at"`
}

// HistoryPage is one page of submissions, newest first.
type HistoryPage struct {
	Items      []HistoryItem `json:"items"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}

// History pages through the user's submissions. page starts at 1.
func (s *Service) History(ctx context.Context, userID string, page, pageSize int) (*HistoryPage, error) {
	if page < 1 {
		return nil, domain.NewInvalidInput("page", "must be at least 1, got %d", page)
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return nil, domain.NewInvalidInput("page_size", "must be in [1,%d], got %d", maxPageSize, pageSize)
	}

	total, err := s.store.CountSubmissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}
	subs, err := s.store.ListSubmissions(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	hp := &HistoryPage{
		Items:      make([]HistoryItem, 0, len(subs)),
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}
	for _, sub := range subs {
		item := HistoryItem{
			ID:             sub.ID,
			ChallengeID:    sub.ChallengeID,
			ChallengeTitle: sub.ChallengeTitle,
			ChallengeType:  sub.ChallengeType,
			Subject:        sub.Subject,
			SubjectName:    sub.Subject,
			Difficulty:     sub.Difficulty,
			IsCorrect:      sub.IsCorrect,
			CorrectnessPct: sub.CorrectnessPct,
			XPEarned:       sub.XPEarned,
			HintsUsed:      sub.HintsUsed,
			CompletedAt:    sub.CompletedAt,
		}
		if subj, ok := s.generator.Catalog().Get(sub.Subject); ok {
			item.SubjectName = subj.Name
			item.SubjectIcon = subj.Icon
		}
		hp.Items = append(hp.Items, item)
	}
	return hp, nil
}
