package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/repository"
)

const (
	avatarTableStudents = "students"
	avatarTableTeachers = "teachers"
)

var allowedAvatarTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// AvatarStorage stores profile pictures and resolves stored references to URLs.
type AvatarStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
	URL(ctx context.Context, reference string) (string, error)
}

// AvatarResolver turns stored profile picture references into displayable URLs.
type AvatarResolver interface {
	Resolve(ctx context.Context, reference string) string
}

// AvatarService resolves and replaces profile pictures of students and teachers.
type AvatarService interface {
	AvatarResolver
	UploadStudent(ctx context.Context, actor ActivityActor, studentID uint, filename string, content []byte) (dto.AvatarResponse, error)
	UploadTeacher(ctx context.Context, actor ActivityActor, teacherID uint, filename string, content []byte) (dto.AvatarResponse, error)
}

// AvatarConfig tunes avatar handling.
type AvatarConfig struct {
	Placeholder    string
	ResolveTimeout time.Duration
	MaxBytes       int64
}

type avatarService struct {
	storage  AvatarStorage
	students repository.StudentRepository
	teachers repository.TeacherRepository
	events   RosterEvents
	activity ActivityRecorder
	cfg      AvatarConfig
	logger   zerolog.Logger
}

// NewAvatarService constructs the avatar service. A nil storage resolves every
// reference that is not already a URL to the placeholder.
func NewAvatarService(storage AvatarStorage, students repository.StudentRepository, teachers repository.TeacherRepository, events RosterEvents, activity ActivityRecorder, cfg AvatarConfig, logger zerolog.Logger) AvatarService {
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 500 * time.Millisecond
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 2 << 20
	}
	return &avatarService{
		storage:  storage,
		students: students,
		teachers: teachers,
		events:   events,
		activity: activity,
		cfg:      cfg,
		logger:   logger.With().Str("component", "avatar_service").Logger(),
	}
}

func (s *avatarService) Resolve(ctx context.Context, reference string) string {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return s.cfg.Placeholder
	}
	if strings.HasPrefix(reference, "https://") || strings.HasPrefix(reference, "http://") {
		return reference
	}
	if s.storage == nil {
		return s.cfg.Placeholder
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ResolveTimeout)
	defer cancel()

	type result struct {
		url string
		err error
	}
	done := make(chan result, 1)
	go func() {
		url, err := s.storage.URL(ctx, reference)
		done <- result{url: url, err: err}
	}()

	select {
	case <-ctx.Done():
		s.logger.Debug().Str("reference", reference).Msg("avatar resolution timed out")
		return s.cfg.Placeholder
	case res := <-done:
		if res.err != nil || res.url == "" {
			s.logger.Debug().Err(res.err).Str("reference", reference).Msg("avatar resolution failed")
			return s.cfg.Placeholder
		}
		return res.url
	}
}

func (s *avatarService) UploadStudent(ctx context.Context, actor ActivityActor, studentID uint, filename string, content []byte) (dto.AvatarResponse, error) {
	if _, err := s.students.GetByID(ctx, studentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AvatarResponse{}, ErrStudentNotFound
		}
		return dto.AvatarResponse{}, err
	}

	reference, err := s.upload(ctx, filename, content)
	if err != nil {
		return dto.AvatarResponse{}, err
	}
	if err := s.students.UpdateProfilePicture(ctx, studentID, reference); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AvatarResponse{}, ErrStudentNotFound
		}
		return dto.AvatarResponse{}, err
	}

	s.afterUpload(ctx, actor, avatarTableStudents, studentID)
	return dto.AvatarResponse{Reference: reference, URL: s.Resolve(ctx, reference)}, nil
}

func (s *avatarService) UploadTeacher(ctx context.Context, actor ActivityActor, teacherID uint, filename string, content []byte) (dto.AvatarResponse, error) {
	if _, err := s.teachers.GetByID(ctx, teacherID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AvatarResponse{}, ErrTeacherNotFound
		}
		return dto.AvatarResponse{}, err
	}

	reference, err := s.upload(ctx, filename, content)
	if err != nil {
		return dto.AvatarResponse{}, err
	}
	if err := s.teachers.UpdateProfilePicture(ctx, teacherID, reference); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AvatarResponse{}, ErrTeacherNotFound
		}
		return dto.AvatarResponse{}, err
	}

	s.afterUpload(ctx, actor, avatarTableTeachers, teacherID)
	return dto.AvatarResponse{Reference: reference, URL: s.Resolve(ctx, reference)}, nil
}

func (s *avatarService) upload(ctx context.Context, filename string, content []byte) (string, error) {
	if int64(len(content)) > s.cfg.MaxBytes {
		return "", ErrAvatarTooLarge
	}
	detected := mimetype.Detect(content)
	if _, ok := allowedAvatarTypes[detected.String()]; !ok {
		return "", ErrUnsupportedAvatar
	}
	if s.storage == nil {
		return "", errors.New("avatar storage is not configured")
	}

	reference, err := s.storage.Upload(ctx, filename, bytes.NewReader(content))
	if err != nil {
		s.logger.Error().Err(err).Str("filename", filename).Msg("failed to upload avatar")
		return "", err
	}
	return reference, nil
}

func (s *avatarService) afterUpload(ctx context.Context, actor ActivityActor, table string, id uint) {
	if s.events != nil {
		s.events.Publish(ctx, NewRosterChange(table, RosterActionUpdate, id))
	}
	recordActivity(ctx, s.activity, s.logger, actor, "avatar.updated", strings.TrimSuffix(table, "s"), &id, nil)
}
