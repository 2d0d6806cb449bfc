package dto

import "time"

// Statistics bucket sizes.
const (
	BucketDay   = "day"
	BucketWeek  = "week"
	BucketMonth = "month"
)

// StatisticsQuery selects the window and granularity of the statistics view.
type StatisticsQuery struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Bucket  string    `json:"bucket" validate:"omitempty,oneof=day week month"`
	Section string    `json:"section" validate:"omitempty,max=120"`
}

// ScoreTrendPoint is the average quiz percentage inside one bucket.
type ScoreTrendPoint struct {
	BucketStart  time.Time `json:"bucket_start"`
	AverageScore float64   `json:"average_score"`
	Attempts     int64     `json:"attempts"`
}

// EngagementTrendPoint aggregates lesson views inside one bucket.
type EngagementTrendPoint struct {
	BucketStart    time.Time `json:"bucket_start"`
	Views          int64     `json:"views"`
	Minutes        float64   `json:"minutes"`
	ActiveStudents int       `json:"active_students"`
}

// SectionScore is the average quiz percentage of one section.
type SectionScore struct {
	Section      string  `json:"section"`
	AverageScore float64 `json:"average_score"`
	Attempts     int64   `json:"attempts"`
}

// QuizPopularity ranks quizzes by attempts.
type QuizPopularity struct {
	QuizTitle    string  `json:"quiz_title"`
	Attempts     int64   `json:"attempts"`
	AverageScore float64 `json:"average_score"`
}

// ScoreDistributionResponse counts attempts per percentage band.
type ScoreDistributionResponse map[string]int64

// StatisticsResponse is the chart data of the statistics view.
type StatisticsResponse struct {
	Bucket            string                    `json:"bucket"`
	From              time.Time                 `json:"from"`
	To                time.Time                 `json:"to"`
	StudentCount      int                       `json:"student_count"`
	ScoreTrend        []ScoreTrendPoint         `json:"score_trend"`
	EngagementTrend   []EngagementTrendPoint    `json:"engagement_trend"`
	ScoreDistribution ScoreDistributionResponse `json:"score_distribution"`
	SectionScores     []SectionScore            `json:"section_scores"`
	TopQuizzes        []QuizPopularity          `json:"top_quizzes"`
	GeneratedAt       time.Time                 `json:"generated_at"`
	CacheHit          bool                      `json:"cache_hit"`
}

// StatisticsInsightResponse carries a narrative summary of the statistics.
type StatisticsInsightResponse struct {
	Summary     string    `json:"summary"`
	Highlights  []string  `json:"highlights"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generated_at"`
}
