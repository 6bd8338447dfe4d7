package services

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/repos"
	"github.com/wgelabs/lms-backend/internal/types"
)

type StatsView struct {
	Users   int64 `json:"users"`
	Courses int64 `json:"courses"`
	Events  int64 `json:"events"`
}

type StatsService interface {
	Overview(ctx context.Context) (*StatsView, error)
	// ActorClassEvents returns the raw event trail for one (actor, class),
	// the support-side view behind "what did this learner actually send".
	ActorClassEvents(ctx context.Context, actorID uuid.UUID, classID string) ([]*types.Event, error)
}

type statsService struct {
	db      *gorm.DB
	log     *logger.Logger
	users   repos.UserRepo
	courses repos.CourseRepo
	events  repos.EventRepo
}

func NewStatsService(db *gorm.DB, baseLog *logger.Logger, users repos.UserRepo, courses repos.CourseRepo, events repos.EventRepo) StatsService {
	return &statsService{
		db:      db,
		log:     baseLog.With("service", "StatsService"),
		users:   users,
		courses: courses,
		events:  events,
	}
}

func (s *statsService) Overview(ctx context.Context) (*StatsView, error) {
	var view StatsView
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.users.Count(gctx, nil)
		view.Users = n
		return err
	})
	g.Go(func() error {
		n, err := s.courses.Count(gctx, nil)
		view.Courses = n
		return err
	})
	g.Go(func() error {
		n, err := s.events.Count(gctx, nil)
		view.Events = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *statsService) ActorClassEvents(ctx context.Context, actorID uuid.UUID, classID string) ([]*types.Event, error) {
	if actorID == uuid.Nil || classID == "" {
		return nil, ValidationError("actor_id and class_id are required")
	}
	return s.events.GetByActorAndClassID(ctx, nil, actorID, classID)
}
