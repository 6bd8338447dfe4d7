package services

import (
	"context"
	"testing"

	"github.com/wgelabs/lms-backend/internal/types"
)

func fiveAnswerKey() map[string]any {
	return map[string]any{"q1": "a", "q2": "a", "q3": "a", "q4": "a", "q5": "a"}
}

// Walks a learner through a three step course: a video step, a quiz step and
// a content-only step. Checks the gate, the progress percentage and the
// rewards issued at every stage.
func TestIngestThreeStepCourse(t *testing.T) {
	env := newTestEnv(t)
	actorID := env.createUser(t, "Ada")
	ctx := actorContext(actorID)

	env.seedCourse(t, "onboarding", []fixtureStep{
		{classID: "intro-video", hasVideo: true, durationSec: 300},
		{classID: "intro-quiz", hasQuiz: true, answers: fiveAnswerKey()},
		{classID: "intro-reading"},
	})

	// A mid-video ping stores the position but completes nothing.
	result := mustIngest(t, env, ctx, EventInput{
		Type:     types.EventVideoPing,
		CourseID: "onboarding",
		ClassID:  "intro-video",
		Payload:  map[string]any{"position_sec": 150.0, "duration_sec": 300.0},
	})
	if result.Signals[types.SignalVideoCompleted] {
		t.Fatalf("video completed at 50%% watched")
	}
	if result.CanAccessStep != 0 {
		t.Fatalf("can_access_step = %d, want 0", result.CanAccessStep)
	}

	// 270/300 is exactly the 90%% threshold: video and step complete, the
	// gate opens one step and the bronze tier is crossed at 33%%.
	result = mustIngest(t, env, ctx, EventInput{
		Type:     types.EventVideoPing,
		CourseID: "onboarding",
		ClassID:  "intro-video",
		Payload:  map[string]any{"position_sec": 270.0, "duration_sec": 300.0},
	})
	if !result.Signals[types.SignalVideoCompleted] || !result.StepCompleted {
		t.Fatalf("threshold ping did not complete video/step: %+v", result.Signals)
	}
	if result.CanAccessStep != 1 {
		t.Fatalf("can_access_step = %d, want 1", result.CanAccessStep)
	}
	if got := result.CourseProgress.Percent; got != 33.33 {
		t.Fatalf("progress percent = %v, want 33.33", got)
	}
	for _, badge := range []string{"video_complete:intro-video", "step_complete:intro-video", "tier_bronze:onboarding"} {
		if !hasBadge(result.Awards, badge) {
			t.Fatalf("missing award %q in %+v", badge, result.Awards)
		}
	}

	// 4 of 5 correct is exactly the 80%% pass mark; silver is crossed at 67%%.
	result = mustIngest(t, env, ctx, EventInput{
		Type:     types.EventQuizSubmit,
		CourseID: "onboarding",
		ClassID:  "intro-quiz",
		Payload: map[string]any{"answers": map[string]any{
			"q1": "a", "q2": "a", "q3": "a", "q4": "a", "q5": "x",
		}},
	})
	if result.Quiz == nil {
		t.Fatalf("quiz outcome missing")
	}
	if result.Quiz.Correct != 4 || result.Quiz.Total != 5 || !result.Quiz.Passed {
		t.Fatalf("quiz outcome = %+v, want 4/5 passed", result.Quiz)
	}
	if result.CanAccessStep != 2 {
		t.Fatalf("can_access_step = %d, want 2", result.CanAccessStep)
	}
	for _, badge := range []string{"quiz_passed:intro-quiz", "step_complete:intro-quiz", "tier_silver:onboarding"} {
		if !hasBadge(result.Awards, badge) {
			t.Fatalf("missing award %q in %+v", badge, result.Awards)
		}
	}

	// Viewing the content-only step finishes the course; gold and master are
	// both crossed in the same update.
	result = mustIngest(t, env, ctx, EventInput{
		Type:     types.EventStepView,
		CourseID: "onboarding",
		ClassID:  "intro-reading",
		Payload:  map[string]any{},
	})
	if !result.StepCompleted {
		t.Fatalf("content-only step did not complete on view")
	}
	if result.CanAccessStep != 3 {
		t.Fatalf("can_access_step = %d, want 3", result.CanAccessStep)
	}
	if result.CourseProgress.Percent != 100 {
		t.Fatalf("progress percent = %v, want 100", result.CourseProgress.Percent)
	}
	for _, badge := range []string{"step_complete:intro-reading", "tier_gold:onboarding", "tier_master:onboarding"} {
		if !hasBadge(result.Awards, badge) {
			t.Fatalf("missing award %q in %+v", badge, result.Awards)
		}
	}

	// Replaying a completion changes nothing and re-issues nothing.
	result = mustIngest(t, env, ctx, EventInput{
		Type:     types.EventVideoComplete,
		CourseID: "onboarding",
		ClassID:  "intro-video",
		Payload:  map[string]any{},
	})
	if result.StepCompleted {
		t.Fatalf("replayed completion reported a new transition")
	}
	if len(result.Awards) != 0 {
		t.Fatalf("replayed completion issued awards: %+v", result.Awards)
	}
	if !result.Signals[types.SignalStepCompleted] {
		t.Fatalf("replay should still report the current signal state")
	}
}

func TestIngestVideoSignalIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	actorID := env.createUser(t, "Sam")
	ctx := actorContext(actorID)

	env.seedCourse(t, "c1", []fixtureStep{
		{classID: "v1", hasVideo: true, durationSec: 300},
	})

	mustIngest(t, env, ctx, EventInput{
		Type:     types.EventVideoPing,
		CourseID: "c1",
		ClassID:  "v1",
		Payload:  map[string]any{"position_sec": 285.0, "duration_sec": 300.0},
	})

	// Seeking back to 40% updates the stored position but never un-sets the
	// completion signal.
	result := mustIngest(t, env, ctx, EventInput{
		Type:     types.EventVideoPing,
		CourseID: "c1",
		ClassID:  "v1",
		Payload:  map[string]any{"position_sec": 120.0, "duration_sec": 300.0},
	})
	if !result.Signals[types.SignalVideoCompleted] {
		t.Fatalf("completion signal reverted after a backward seek")
	}
	if len(result.Awards) != 0 {
		t.Fatalf("backward seek issued awards: %+v", result.Awards)
	}

	positions, err := env.positions.GetByActorAndCourseID(context.Background(), nil, actorID, "c1")
	if err != nil {
		t.Fatalf("read positions: %v", err)
	}
	if len(positions) != 1 || positions[0].PositionSec != 120 {
		t.Fatalf("positions = %+v, want single row at 120s", positions)
	}
}

func TestIngestQuizSingleAttempt(t *testing.T) {
	env := newTestEnv(t)
	actorID := env.createUser(t, "Kim")
	ctx := actorContext(actorID)

	env.seedCourse(t, "c1", []fixtureStep{
		{classID: "quiz1", hasQuiz: true, answers: fiveAnswerKey()},
	})

	// A failing attempt still consumes the one allowed attempt.
	result := mustIngest(t, env, ctx, EventInput{
		Type:     types.EventQuizSubmit,
		CourseID: "c1",
		ClassID:  "quiz1",
		Payload: map[string]any{"answers": map[string]any{
			"q1": "a", "q2": "a", "q3": "x", "q4": "x", "q5": "x",
		}},
	})
	if result.Quiz == nil || result.Quiz.Passed {
		t.Fatalf("2/5 should not pass: %+v", result.Quiz)
	}
	if result.StepCompleted {
		t.Fatalf("failed quiz completed the step")
	}

	_, err := env.ingest.IngestOne(ctx, EventInput{
		Type:     types.EventQuizSubmit,
		CourseID: "c1",
		ClassID:  "quiz1",
		Payload:  map[string]any{"answers": map[string]any{"q1": "a"}},
	})
	if err == nil {
		t.Fatalf("second attempt accepted")
	}
	if CodeOf(err) != CodePolicy {
		t.Fatalf("second attempt code = %q, want %q", CodeOf(err), CodePolicy)
	}
}

func TestIngestQuizLockedUntilVideoComplete(t *testing.T) {
	env := newTestEnv(t)
	actorID := env.createUser(t, "Lee")
	ctx := actorContext(actorID)

	env.seedCourse(t, "c1", []fixtureStep{
		{classID: "both1", hasVideo: true, hasQuiz: true, durationSec: 300, answers: fiveAnswerKey()},
	})

	submit := EventInput{
		Type:     types.EventQuizSubmit,
		CourseID: "c1",
		ClassID:  "both1",
		Payload: map[string]any{"answers": map[string]any{
			"q1": "a", "q2": "a", "q3": "a", "q4": "a", "q5": "a",
		}},
	}
	_, err := env.ingest.IngestOne(ctx, submit)
	if CodeOf(err) != CodePolicy {
		t.Fatalf("locked quiz code = %q (err %v), want %q", CodeOf(err), err, CodePolicy)
	}

	mustIngest(t, env, ctx, EventInput{
		Type:     types.EventVideoComplete,
		CourseID: "c1",
		ClassID:  "both1",
		Payload:  map[string]any{},
	})

	result := mustIngest(t, env, ctx, submit)
	if !result.StepCompleted {
		t.Fatalf("video+quiz step not complete after both requirements met")
	}
}

func TestIngestLinearGateCountsLeadingStepsOnly(t *testing.T) {
	env := newTestEnv(t)
	actorID := env.createUser(t, "Pat")
	ctx := actorContext(actorID)

	env.seedCourse(t, "c1", []fixtureStep{
		{classID: "s0"}, {classID: "s1"}, {classID: "s2"}, {classID: "s3"}, {classID: "s4"},
	})

	view := func(classID string) *EventResult {
		return mustIngest(t, env, ctx, EventInput{
			Type:     types.EventStepView,
			CourseID: "c1",
			ClassID:  classID,
			Payload:  map[string]any{},
		})
	}

	if got := view("s0").CanAccessStep; got != 1 {
		t.Fatalf("after s0: can_access_step = %d, want 1", got)
	}
	// s2 completes out of order; the gate stops at the s1 hole.
	if got := view("s2").CanAccessStep; got != 1 {
		t.Fatalf("after s2: can_access_step = %d, want 1", got)
	}
	// Filling the hole extends the gate past the already-complete s2.
	if got := view("s1").CanAccessStep; got != 3 {
		t.Fatalf("after s1: can_access_step = %d, want 3", got)
	}
}

func TestIngestValidation(t *testing.T) {
	env := newTestEnv(t)
	actorID := env.createUser(t, "Val")
	ctx := actorContext(actorID)

	env.seedCourse(t, "c1", []fixtureStep{
		{classID: "v1", hasVideo: true, durationSec: 300},
		{classID: "r1"},
	})

	cases := []struct {
		name     string
		in       EventInput
		wantCode string
	}{
		{
			name:     "unknown event type",
			in:       EventInput{Type: "PAGE_SCROLL", CourseID: "c1", ClassID: "v1"},
			wantCode: CodeValidation,
		},
		{
			name:     "missing class id",
			in:       EventInput{Type: types.EventStepView, CourseID: "c1"},
			wantCode: CodeValidation,
		},
		{
			name: "ping without duration",
			in: EventInput{
				Type: types.EventVideoPing, CourseID: "c1", ClassID: "v1",
				Payload: map[string]any{"position_sec": 10.0},
			},
			wantCode: CodeValidation,
		},
		{
			name: "ping with zero duration",
			in: EventInput{
				Type: types.EventVideoPing, CourseID: "c1", ClassID: "v1",
				Payload: map[string]any{"position_sec": 10.0, "duration_sec": 0.0},
			},
			wantCode: CodeValidation,
		},
		{
			name: "ping on a step without video",
			in: EventInput{
				Type: types.EventVideoPing, CourseID: "c1", ClassID: "r1",
				Payload: map[string]any{"position_sec": 10.0, "duration_sec": 300.0},
			},
			wantCode: CodeValidation,
		},
		{
			name: "quiz submit with empty answers",
			in: EventInput{
				Type: types.EventQuizSubmit, CourseID: "c1", ClassID: "v1",
				Payload: map[string]any{"answers": map[string]any{}},
			},
			wantCode: CodeValidation,
		},
		{
			name:     "unknown class",
			in:       EventInput{Type: types.EventStepView, CourseID: "c1", ClassID: "ghost"},
			wantCode: CodeNotFound,
		},
		{
			name:     "class from another course",
			in:       EventInput{Type: types.EventStepView, CourseID: "c2", ClassID: "r1"},
			wantCode: CodeNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.ingest.IngestOne(ctx, tc.in)
			if err == nil {
				t.Fatalf("accepted invalid input")
			}
			if CodeOf(err) != tc.wantCode {
				t.Fatalf("code = %q (err %v), want %q", CodeOf(err), err, tc.wantCode)
			}
		})
	}

	// Nothing invalid reaches the store.
	count, err := env.events.Count(context.Background(), nil)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 0 {
		t.Fatalf("event count = %d, want 0", count)
	}
}

func TestIngestBatchPartialSuccess(t *testing.T) {
	env := newTestEnv(t)
	actorID := env.createUser(t, "Bea")
	ctx := actorContext(actorID)

	env.seedCourse(t, "c1", []fixtureStep{
		{classID: "v1", hasVideo: true, durationSec: 300},
		{classID: "r1"},
	})

	outcomes, err := env.ingest.IngestBatch(ctx, []EventInput{
		{
			Type: types.EventVideoPing, CourseID: "c1", ClassID: "v1",
			Payload: map[string]any{"position_sec": 280.0, "duration_sec": 300.0},
		},
		{Type: "BOGUS", CourseID: "c1", ClassID: "v1"},
		{Type: types.EventStepView, CourseID: "c1", ClassID: "r1", Payload: map[string]any{}},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	if !outcomes[0].Accepted || outcomes[0].Result == nil {
		t.Fatalf("item 0 rejected: %+v", outcomes[0])
	}
	if outcomes[1].Accepted || outcomes[1].Code != CodeValidation {
		t.Fatalf("item 1 = %+v, want rejected with %q", outcomes[1], CodeValidation)
	}
	if !outcomes[2].Accepted {
		t.Fatalf("item 2 rejected: %+v", outcomes[2])
	}

	// The rejected member rolled back nothing around it.
	count, err := env.events.Count(context.Background(), nil)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 2 {
		t.Fatalf("event count = %d, want 2", count)
	}
}

func TestIngestBatchSizeLimit(t *testing.T) {
	env := newTestEnv(t)
	actorID := env.createUser(t, "Max")
	ctx := actorContext(actorID)

	ins := make([]EventInput, maxBatchSize+1)
	for i := range ins {
		ins[i] = EventInput{Type: types.EventStepView, CourseID: "c1", ClassID: "s0"}
	}
	_, err := env.ingest.IngestBatch(ctx, ins)
	if CodeOf(err) != CodeValidation {
		t.Fatalf("oversized batch code = %q (err %v), want %q", CodeOf(err), err, CodeValidation)
	}
}

func TestIngestRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ingest.IngestOne(context.Background(), EventInput{
		Type: types.EventStepView, CourseID: "c1", ClassID: "s0",
	})
	if err == nil {
		t.Fatalf("accepted an unauthenticated ingest")
	}
}
