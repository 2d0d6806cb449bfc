package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/observability"
	"github.com/noah-isme/classroom-api/internal/repository"
	"github.com/noah-isme/classroom-api/internal/roster"
	"github.com/noah-isme/classroom-api/pkg/ai"
)

const (
	maxStatisticsBuckets = 400
	topQuizLimit         = 5
	defaultStatsWindow   = 56 * 24 * time.Hour
)

// ErrInvalidStatisticsRange indicates the requested window is empty or too wide for the bucket size.
var ErrInvalidStatisticsRange = errors.New("invalid statistics range")

// StatisticsService aggregates quiz and lesson activity of the visible students.
type StatisticsService interface {
	Get(ctx context.Context, session roster.Session, query dto.StatisticsQuery) (dto.StatisticsResponse, error)
	Insights(ctx context.Context, session roster.Session, query dto.StatisticsQuery) (dto.StatisticsInsightResponse, error)
}

type statisticsService struct {
	loader    *RosterLoader
	repo      repository.StatisticsRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	narrator  ai.Narrator
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewStatisticsService constructs the statistics service. Cache and narrator are optional.
func NewStatisticsService(loader *RosterLoader, repo repository.StatisticsRepository, cache *redis.Client, ttl time.Duration, narrator ai.Narrator, validate *validator.Validate, logger zerolog.Logger) StatisticsService {
	return &statisticsService{
		loader:    loader,
		repo:      repo,
		cache:     cache,
		cacheTTL:  ttl,
		narrator:  narrator,
		validator: validate,
		logger:    logger.With().Str("component", "statistics_service").Logger(),
		now:       time.Now,
	}
}

func (s *statisticsService) Get(ctx context.Context, session roster.Session, query dto.StatisticsQuery) (dto.StatisticsResponse, error) {
	response, _, _, err := s.aggregate(ctx, session, query)
	return response, err
}

func (s *statisticsService) aggregate(ctx context.Context, session roster.Session, query dto.StatisticsQuery) (dto.StatisticsResponse, []uint, dto.StatisticsQuery, error) {
	tracer := otel.Tracer("github.com/noah-isme/classroom-api/internal/service/statistics")
	ctx, span := tracer.Start(ctx, "statistics.aggregate")
	defer span.End()

	query, err := s.normalize(query)
	if err != nil {
		return dto.StatisticsResponse{}, nil, query, err
	}

	visible, _, _, err := s.loader.Visible(ctx, session, roster.Filter{Section: query.Section})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load_roster_failed")
		return dto.StatisticsResponse{}, nil, query, err
	}

	ids := roster.VisibleIDs(visible)
	cacheKey := statisticsCacheKey("statistics", query, ids)
	span.SetAttributes(
		attribute.String("statistics.cache_key", cacheKey),
		attribute.Int("statistics.students", len(visible)),
	)

	var response dto.StatisticsResponse
	if s.readCache(ctx, cacheKey, &response) {
		response.CacheHit = true
		span.SetAttributes(attribute.Bool("statistics.cache_hit", true))
		return response, ids, query, nil
	}

	var (
		attempts []models.QuizAttempt
		views    []models.LessonView
	)
	if len(visible) > 0 {
		rng := repository.StatisticsRange{StudentIDs: ids, From: query.From, To: query.To}
		attempts, err = s.repo.ListQuizAttempts(ctx, rng)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list_quiz_attempts_failed")
			return dto.StatisticsResponse{}, nil, query, err
		}
		views, err = s.repo.ListLessonViews(ctx, rng)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list_lesson_views_failed")
			return dto.StatisticsResponse{}, nil, query, err
		}
	}

	response = buildStatistics(query, visible, attempts, views, s.now())
	span.SetAttributes(
		attribute.Int("statistics.quiz_attempts", len(attempts)),
		attribute.Int("statistics.lesson_views", len(views)),
	)
	s.writeCache(ctx, cacheKey, response)

	return response, ids, query, nil
}

func (s *statisticsService) Insights(ctx context.Context, session roster.Session, query dto.StatisticsQuery) (dto.StatisticsInsightResponse, error) {
	if s.narrator == nil {
		return dto.StatisticsInsightResponse{}, ErrInsightsUnavailable
	}

	stats, ids, normalized, err := s.aggregate(ctx, session, query)
	if err != nil {
		return dto.StatisticsInsightResponse{}, err
	}
	cacheKey := statisticsCacheKey("statistics:insight", normalized, ids)

	var cached dto.StatisticsInsightResponse
	if s.readCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	result, err := s.narrator.Summarize(ctx, insightInput(stats, normalized))
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to generate statistics insight")
		return dto.StatisticsInsightResponse{}, err
	}

	response := dto.StatisticsInsightResponse{
		Summary:     result.Summary,
		Highlights:  result.Highlights,
		Model:       result.Model,
		GeneratedAt: s.now().UTC(),
	}
	s.writeCache(ctx, cacheKey, response)
	return response, nil
}

func (s *statisticsService) normalize(query dto.StatisticsQuery) (dto.StatisticsQuery, error) {
	if s.validator != nil {
		if err := s.validator.Struct(query); err != nil {
			return query, err
		}
	}
	if query.Bucket == "" {
		query.Bucket = dto.BucketWeek
	}
	if query.To.IsZero() {
		query.To = s.now()
	}
	if query.From.IsZero() {
		query.From = query.To.Add(-defaultStatsWindow)
	}
	query.From = query.From.UTC()
	query.To = query.To.UTC()
	query.Section = strings.TrimSpace(query.Section)

	if !query.From.Before(query.To) {
		return query, fmt.Errorf("%w: from must be before to", ErrInvalidStatisticsRange)
	}
	if len(bucketStarts(query.From, query.To, query.Bucket)) > maxStatisticsBuckets {
		return query, fmt.Errorf("%w: too many %s buckets", ErrInvalidStatisticsRange, query.Bucket)
	}
	return query, nil
}

func (s *statisticsService) readCache(ctx context.Context, key string, target interface{}) bool {
	if s.cache == nil {
		return false
	}
	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read statistics cache")
		}
		observability.StatisticsCacheLookups().WithLabelValues("miss").Inc()
		return false
	}
	if err := json.Unmarshal([]byte(cached), target); err != nil {
		observability.StatisticsCacheLookups().WithLabelValues("miss").Inc()
		return false
	}
	observability.StatisticsCacheLookups().WithLabelValues("hit").Inc()
	return true
}

func (s *statisticsService) writeCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store statistics cache")
	}
}

// statisticsCacheKey keys the cache by the query and the exact visible student
// set, so sessions that see the same students share an entry.
func statisticsCacheKey(prefix string, query dto.StatisticsQuery, ids []uint) string {
	sorted := append([]uint(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	hasher := fnv.New64a()
	for _, id := range sorted {
		_, _ = hasher.Write([]byte(strconv.FormatUint(uint64(id), 10)))
		_, _ = hasher.Write([]byte{','})
	}
	return fmt.Sprintf("%s:%s:%d:%d:%x", prefix, query.Bucket, query.From.Unix(), query.To.Unix(), hasher.Sum64())
}

func buildStatistics(query dto.StatisticsQuery, students []roster.Student, attempts []models.QuizAttempt, views []models.LessonView, now time.Time) dto.StatisticsResponse {
	starts := bucketStarts(query.From, query.To, query.Bucket)

	type scoreAcc struct {
		sum   float64
		count int64
	}
	scoreByBucket := make(map[time.Time]*scoreAcc, len(starts))
	for _, start := range starts {
		scoreByBucket[start] = &scoreAcc{}
	}

	sectionOf := make(map[uint]string, len(students))
	for _, student := range students {
		name := student.SectionName
		if name == "" {
			name = roster.NoSection
		}
		sectionOf[student.ID] = name
	}

	distribution := dto.ScoreDistributionResponse{
		"90-100": 0,
		"75-89":  0,
		"60-74":  0,
		"0-59":   0,
	}
	sectionScores := map[string]*scoreAcc{}
	quizzes := map[string]*scoreAcc{}

	for _, attempt := range attempts {
		percent := attempt.Percent()
		if acc, ok := scoreByBucket[bucketStart(attempt.CompletedAt, query.Bucket)]; ok {
			acc.sum += percent
			acc.count++
		}

		switch {
		case percent >= 90:
			distribution["90-100"]++
		case percent >= 75:
			distribution["75-89"]++
		case percent >= 60:
			distribution["60-74"]++
		default:
			distribution["0-59"]++
		}

		section := sectionOf[attempt.StudentID]
		if section == "" {
			section = roster.NoSection
		}
		if sectionScores[section] == nil {
			sectionScores[section] = &scoreAcc{}
		}
		sectionScores[section].sum += percent
		sectionScores[section].count++

		if quizzes[attempt.QuizTitle] == nil {
			quizzes[attempt.QuizTitle] = &scoreAcc{}
		}
		quizzes[attempt.QuizTitle].sum += percent
		quizzes[attempt.QuizTitle].count++
	}

	type engagementAcc struct {
		views    int64
		seconds  int64
		students map[uint]struct{}
	}
	engagement := make(map[time.Time]*engagementAcc, len(starts))
	for _, start := range starts {
		engagement[start] = &engagementAcc{students: map[uint]struct{}{}}
	}
	for _, view := range views {
		acc, ok := engagement[bucketStart(view.ViewedAt, query.Bucket)]
		if !ok {
			continue
		}
		acc.views++
		acc.seconds += int64(view.DurationSeconds)
		acc.students[view.StudentID] = struct{}{}
	}

	scoreTrend := make([]dto.ScoreTrendPoint, 0, len(starts))
	engagementTrend := make([]dto.EngagementTrendPoint, 0, len(starts))
	for _, start := range starts {
		score := scoreByBucket[start]
		scoreTrend = append(scoreTrend, dto.ScoreTrendPoint{
			BucketStart:  start,
			AverageScore: average(score.sum, score.count),
			Attempts:     score.count,
		})
		acc := engagement[start]
		engagementTrend = append(engagementTrend, dto.EngagementTrendPoint{
			BucketStart:    start,
			Views:          acc.views,
			Minutes:        round2(float64(acc.seconds) / 60),
			ActiveStudents: len(acc.students),
		})
	}

	sections := make([]dto.SectionScore, 0, len(sectionScores))
	for name, acc := range sectionScores {
		sections = append(sections, dto.SectionScore{Section: name, AverageScore: average(acc.sum, acc.count), Attempts: acc.count})
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Section < sections[j].Section })

	top := make([]dto.QuizPopularity, 0, len(quizzes))
	for title, acc := range quizzes {
		top = append(top, dto.QuizPopularity{QuizTitle: title, Attempts: acc.count, AverageScore: average(acc.sum, acc.count)})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Attempts != top[j].Attempts {
			return top[i].Attempts > top[j].Attempts
		}
		return top[i].QuizTitle < top[j].QuizTitle
	})
	if len(top) > topQuizLimit {
		top = top[:topQuizLimit]
	}

	return dto.StatisticsResponse{
		Bucket:            query.Bucket,
		From:              query.From,
		To:                query.To,
		StudentCount:      len(students),
		ScoreTrend:        scoreTrend,
		EngagementTrend:   engagementTrend,
		ScoreDistribution: distribution,
		SectionScores:     sections,
		TopQuizzes:        top,
		GeneratedAt:       now.UTC(),
	}
}

func insightInput(stats dto.StatisticsResponse, query dto.StatisticsQuery) ai.InsightInput {
	scope := "All visible students"
	if query.Section != "" && query.Section != roster.SectionAll {
		scope = "Section " + query.Section
	}

	var sum float64
	var count int64
	for _, point := range stats.ScoreTrend {
		sum += point.AverageScore * float64(point.Attempts)
		count += point.Attempts
	}

	scores := make([]ai.SeriesPoint, 0, len(stats.ScoreTrend))
	engagement := make([]ai.SeriesPoint, 0, len(stats.EngagementTrend))
	for _, point := range stats.ScoreTrend {
		if point.Attempts > 0 {
			scores = append(scores, ai.SeriesPoint{Label: point.BucketStart.Format("2006-01-02"), Value: point.AverageScore})
		}
	}
	for _, point := range stats.EngagementTrend {
		engagement = append(engagement, ai.SeriesPoint{Label: point.BucketStart.Format("2006-01-02"), Value: point.Minutes})
	}
	sections := make([]ai.SeriesPoint, 0, len(stats.SectionScores))
	for _, section := range stats.SectionScores {
		sections = append(sections, ai.SeriesPoint{Label: section.Section, Value: section.AverageScore})
	}

	notes := make([]string, 0, len(stats.TopQuizzes)+1)
	notes = append(notes, "bucket: "+stats.Bucket)
	for _, quiz := range stats.TopQuizzes {
		notes = append(notes, fmt.Sprintf("quiz %q: %d attempts", quiz.QuizTitle, quiz.Attempts))
	}

	return ai.InsightInput{
		Scope:  scope,
		Period: stats.From.Format("2006-01-02") + " to " + stats.To.Format("2006-01-02"),
		Metrics: map[string]float64{
			"students":      float64(stats.StudentCount),
			"quiz_attempts": float64(count),
			"average_score": average(sum, count),
		},
		Series: map[string][]ai.SeriesPoint{
			"Average score per bucket":  scores,
			"Lesson minutes per bucket": engagement,
			"Average score per section": sections,
		},
		Notes: notes,
	}
}

func bucketStarts(from, to time.Time, bucket string) []time.Time {
	var starts []time.Time
	for cursor := bucketStart(from, bucket); cursor.Before(to); cursor = nextBucket(cursor, bucket) {
		starts = append(starts, cursor)
		if len(starts) > maxStatisticsBuckets {
			break
		}
	}
	return starts
}

func bucketStart(t time.Time, bucket string) time.Time {
	utc := t.UTC()
	switch bucket {
	case dto.BucketDay:
		return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	case dto.BucketMonth:
		return time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return startOfWeek(utc)
	}
}

func nextBucket(start time.Time, bucket string) time.Time {
	switch bucket {
	case dto.BucketDay:
		return start.AddDate(0, 0, 1)
	case dto.BucketMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 7)
	}
}

func startOfWeek(t time.Time) time.Time {
	utc := t.UTC()
	weekday := int(utc.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	start := utc.AddDate(0, 0, -(weekday - 1))
	return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
}

func average(sum float64, count int64) float64 {
	if count == 0 {
		return 0
	}
	return round2(sum / float64(count))
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
