package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/repos"
	"github.com/wgelabs/lms-backend/internal/types"
)

func newStatsService(env *testEnv) StatsService {
	log := logger.NewNop()
	return NewStatsService(env.db, log,
		repos.NewUserRepo(env.db, log),
		repos.NewCourseRepo(env.db, log),
		env.events,
	)
}

func TestStatsOverview(t *testing.T) {
	env := newTestEnv(t)
	actorID := env.createUser(t, "Sia")
	ctx := actorContext(actorID)

	env.seedCourse(t, "c1", []fixtureStep{{classID: "s0"}, {classID: "s1"}})
	mustIngest(t, env, ctx, EventInput{Type: types.EventStepView, CourseID: "c1", ClassID: "s0", Payload: map[string]any{}})
	mustIngest(t, env, ctx, EventInput{Type: types.EventStepView, CourseID: "c1", ClassID: "s1", Payload: map[string]any{}})

	view, err := newStatsService(env).Overview(context.Background())
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if view.Users != 1 || view.Courses != 1 || view.Events != 2 {
		t.Fatalf("stats = %+v, want 1 user, 1 course, 2 events", view)
	}
}

func TestStatsActorClassEvents(t *testing.T) {
	env := newTestEnv(t)
	actorID := env.createUser(t, "Eve")
	otherID := env.createUser(t, "Ned")
	ctx := actorContext(actorID)

	env.seedCourse(t, "c1", []fixtureStep{
		{classID: "v1", hasVideo: true, durationSec: 300},
		{classID: "r1"},
	})
	mustIngest(t, env, ctx, EventInput{
		Type: types.EventVideoPing, CourseID: "c1", ClassID: "v1",
		Payload: map[string]any{"position_sec": 100.0, "duration_sec": 300.0},
	})
	mustIngest(t, env, ctx, EventInput{Type: types.EventVideoComplete, CourseID: "c1", ClassID: "v1", Payload: map[string]any{}})
	mustIngest(t, env, ctx, EventInput{Type: types.EventStepView, CourseID: "c1", ClassID: "r1", Payload: map[string]any{}})
	mustIngest(t, env, actorContext(otherID), EventInput{Type: types.EventStepView, CourseID: "c1", ClassID: "r1", Payload: map[string]any{}})

	stats := newStatsService(env)
	trail, err := stats.ActorClassEvents(context.Background(), actorID, "v1")
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("trail length = %d, want the 2 video events", len(trail))
	}
	for _, ev := range trail {
		if ev.ActorID != actorID || ev.ClassID != "v1" {
			t.Fatalf("foreign event in trail: %+v", ev)
		}
	}

	if _, err := stats.ActorClassEvents(context.Background(), uuid.Nil, "v1"); CodeOf(err) != CodeValidation {
		t.Fatalf("nil actor code = %q (err %v), want %q", CodeOf(err), err, CodeValidation)
	}
}
