package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/repos"
	"github.com/wgelabs/lms-backend/internal/requestdata"
	"github.com/wgelabs/lms-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.User{},
		&types.Course{},
		&types.CourseStep{},
		&types.QuizKey{},
		&types.Event{},
		&types.Signal{},
		&types.VideoPosition{},
		&types.Award{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testEnv wires the full ingest pipeline against a throwaway sqlite DB with
// the default thresholds (video 0.90, quiz 0.80).
type testEnv struct {
	db          *gorm.DB
	events      repos.EventRepo
	signals     repos.SignalRepo
	awards      repos.AwardRepo
	positions   repos.VideoPositionRepo
	catalog     CatalogService
	projector   ProjectorService
	progression ProgressionService
	rewards     RewardService
	ingest      IngestService
	reset       ResetService
	leaderboard LeaderboardService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	log := logger.NewNop()

	events := repos.NewEventRepo(db, log)
	signals := repos.NewSignalRepo(db, log)
	awards := repos.NewAwardRepo(db, log)
	positions := repos.NewVideoPositionRepo(db, log)
	courseRepo := repos.NewCourseRepo(db, log)

	catalog := NewCatalogService(db, log, courseRepo)
	projector := NewProjectorService(db, log, signals, positions, catalog, 0.90, 0.80)
	progression := NewProgressionService(db, log, catalog, signals, positions)
	rewards := NewRewardService(db, log, awards, RewardPoints{})

	return &testEnv{
		db:          db,
		events:      events,
		signals:     signals,
		awards:      awards,
		positions:   positions,
		catalog:     catalog,
		projector:   projector,
		progression: progression,
		rewards:     rewards,
		ingest:      NewIngestService(db, log, events, signals, catalog, projector, progression, rewards),
		reset:       NewResetService(db, log, catalog, events, signals, awards, positions),
		leaderboard: NewLeaderboardService(db, log, awards),
	}
}

func (e *testEnv) createUser(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	user := &types.User{
		ID:          id,
		Email:       fmt.Sprintf("%s@example.com", strings.ToLower(name)),
		DisplayName: name,
		Role:        requestdata.RoleStudent,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

type fixtureStep struct {
	classID     string
	hasVideo    bool
	hasQuiz     bool
	durationSec float64
	answers     map[string]any
}

func (e *testEnv) seedCourse(t *testing.T, courseID string, steps []fixtureStep) {
	t.Helper()
	now := time.Now().UTC()
	if err := e.db.Create(&types.Course{ID: courseID, Title: courseID, CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		t.Fatalf("seed course: %v", err)
	}
	for idx, s := range steps {
		step := &types.CourseStep{
			ClassID:          s.classID,
			CourseID:         courseID,
			Idx:              idx,
			Title:            s.classID,
			HasVideo:         s.hasVideo,
			HasQuiz:          s.hasQuiz,
			VideoDurationSec: s.durationSec,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := e.db.Create(step).Error; err != nil {
			t.Fatalf("seed step %q: %v", s.classID, err)
		}
		if s.hasQuiz {
			raw, err := json.Marshal(s.answers)
			if err != nil {
				t.Fatalf("marshal answers: %v", err)
			}
			if err := e.db.Create(&types.QuizKey{
				ClassID:   s.classID,
				FormID:    "form-" + s.classID,
				Answers:   datatypes.JSON(raw),
				CreatedAt: now,
				UpdatedAt: now,
			}).Error; err != nil {
				t.Fatalf("seed quiz key %q: %v", s.classID, err)
			}
		}
	}
}

func actorContext(actorID uuid.UUID) context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{
		UserID: actorID,
		Role:   requestdata.RoleStudent,
	})
}

func mustIngest(t *testing.T, e *testEnv, ctx context.Context, in EventInput) *EventResult {
	t.Helper()
	result, err := e.ingest.IngestOne(ctx, in)
	if err != nil {
		t.Fatalf("ingest %s %s: %v", in.Type, in.ClassID, err)
	}
	return result
}

func hasBadge(awards []AwardView, badgeID string) bool {
	for _, a := range awards {
		if a.BadgeID == badgeID {
			return true
		}
	}
	return false
}
