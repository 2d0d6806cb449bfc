package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/roster"
)

// SelectionService manages the bulk selection of the roster table. Every
// request recomputes the visible set, so select-all always reflects the
// current filter.
type SelectionService interface {
	Get(ctx context.Context, session roster.Session, query dto.RosterQuery) (dto.SelectionResponse, error)
	Toggle(ctx context.Context, session roster.Session, req dto.SelectionToggleRequest) (dto.SelectionResponse, error)
	ToggleAll(ctx context.Context, session roster.Session, req dto.SelectionToggleAllRequest) (dto.SelectionResponse, error)
	Clear(ctx context.Context, session roster.Session) (dto.SelectionResponse, error)
	Effective(ctx context.Context, session roster.Session, query dto.RosterQuery) ([]uint, error)
}

type selectionService struct {
	loader    *RosterLoader
	store     SelectionStore
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSelectionService constructs the selection service.
func NewSelectionService(loader *RosterLoader, store SelectionStore, validate *validator.Validate, logger zerolog.Logger) SelectionService {
	return &selectionService{
		loader:    loader,
		store:     store,
		validator: validate,
		logger:    logger.With().Str("component", "selection_service").Logger(),
	}
}

func (s *selectionService) Get(ctx context.Context, session roster.Session, query dto.RosterQuery) (dto.SelectionResponse, error) {
	selection, _, err := s.load(ctx, session, query.Filter())
	if err != nil {
		return dto.SelectionResponse{}, err
	}
	return newSelectionResponse(selection), nil
}

func (s *selectionService) Toggle(ctx context.Context, session roster.Session, req dto.SelectionToggleRequest) (dto.SelectionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SelectionResponse{}, err
	}

	selection, visible, err := s.load(ctx, session, roster.Filter{Search: req.Search, Section: req.Section})
	if err != nil {
		return dto.SelectionResponse{}, err
	}
	if req.Checked && !containsID(visible, req.ID) {
		return dto.SelectionResponse{}, ErrStudentNotFound
	}

	selection.ToggleOne(req.ID, req.Checked)
	if err := s.store.Save(ctx, session.UserID, selection); err != nil {
		return dto.SelectionResponse{}, err
	}
	return newSelectionResponse(selection), nil
}

func (s *selectionService) ToggleAll(ctx context.Context, session roster.Session, req dto.SelectionToggleAllRequest) (dto.SelectionResponse, error) {
	selection, visible, err := s.load(ctx, session, roster.Filter{Search: req.Search, Section: req.Section})
	if err != nil {
		return dto.SelectionResponse{}, err
	}

	selection.ToggleAll(req.Checked, visible)
	if err := s.store.Save(ctx, session.UserID, selection); err != nil {
		return dto.SelectionResponse{}, err
	}
	return newSelectionResponse(selection), nil
}

func (s *selectionService) Clear(ctx context.Context, session roster.Session) (dto.SelectionResponse, error) {
	if err := s.store.Clear(ctx, session.UserID); err != nil {
		return dto.SelectionResponse{}, err
	}
	return newSelectionResponse(roster.NewSelection()), nil
}

func (s *selectionService) Effective(ctx context.Context, session roster.Session, query dto.RosterQuery) ([]uint, error) {
	selection, _, err := s.load(ctx, session, query.Filter())
	if err != nil {
		return nil, err
	}
	return selection.Effective(), nil
}

func (s *selectionService) load(ctx context.Context, session roster.Session, filter roster.Filter) (*roster.Selection, []uint, error) {
	visibleStudents, _, _, err := s.loader.Visible(ctx, session, filter)
	if err != nil {
		return nil, nil, err
	}
	visible := roster.VisibleIDs(visibleStudents)

	selection, err := s.store.Load(ctx, session.UserID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("user_id", session.UserID).Msg("failed to load selection, starting empty")
		selection = roster.NewSelection()
	}
	selection.SetVisible(visible)
	return selection, visible, nil
}

func newSelectionResponse(selection *roster.Selection) dto.SelectionResponse {
	return dto.SelectionResponse{
		SelectedIDs:  selection.IDs(),
		EffectiveIDs: selection.Effective(),
		SelectAll:    selection.SelectAll(),
		VisibleCount: selection.VisibleCount(),
	}
}

func containsID(ids []uint, id uint) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
