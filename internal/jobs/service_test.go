package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"genqueue/internal/domain"
	"genqueue/internal/testsupport"
)

type recordingNudger struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (n *recordingNudger) Nudge(ctx context.Context, jobID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, jobID)
	return n.err
}

type serviceFixture struct {
	svc    *Service
	jobs   *testsupport.MemoryJobs
	notes  *testsupport.MemoryNotifications
	nudger *recordingNudger
}

func newServiceFixture() serviceFixture {
	jobs := testsupport.NewMemoryJobs()
	notes := testsupport.NewMemoryNotifications()
	nudger := &recordingNudger{}
	svc := NewService(jobs, jobs, NewNotifier(notes, zerolog.Nop()), NewGatekeeper(5), testRegistry(), nudger, zerolog.Nop())
	return serviceFixture{svc: svc, jobs: jobs, notes: notes, nudger: nudger}
}

func TestSubmitEnqueuesPendingJob(t *testing.T) {
	f := newServiceFixture()
	job, err := f.svc.Submit(context.Background(), "user-1", SubmitRequest{
		JobType:         "image_generation",
		Prompt:          "a cat",
		InputParameters: map[string]any{"aspectRatio": "1:1"},
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	stored, ok := f.jobs.Get(job.ID)
	if !ok || stored.Status != domain.JobStatusPending || stored.Type != domain.JobTypeImageGeneration {
		t.Fatalf("stored job = %+v", stored)
	}
	if stored.InputParameters["aspect_ratio"] != "1:1" {
		t.Fatalf("input parameters = %v", stored.InputParameters)
	}
	if types := f.notes.Types("user-1"); len(types) != 1 || types[0] != domain.NotificationGenerationStarted {
		t.Fatalf("notifications = %v", types)
	}
	if len(f.nudger.ids) != 1 || f.nudger.ids[0] != job.ID {
		t.Fatalf("nudged = %v", f.nudger.ids)
	}
}

func TestSubmitRejectsSecondJobOfSameKind(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()
	first, err := f.svc.Submit(ctx, "user-1", SubmitRequest{JobType: "image_generation", Prompt: "a cat"})
	if err != nil {
		t.Fatalf("first Submit returned error: %v", err)
	}
	_, err = f.svc.Submit(ctx, "user-1", SubmitRequest{JobType: "image_generation", Prompt: "a dog"})
	var capErr *CapacityError
	if !errors.As(err, &capErr) || capErr.Reason != ReasonExclusive {
		t.Fatalf("err = %v, want exclusive capacity error", err)
	}
	if len(capErr.Conflicts) != 1 || capErr.Conflicts[0].ID != first.ID {
		t.Fatalf("conflicts = %+v", capErr.Conflicts)
	}
	active, _ := f.jobs.ListActive(ctx, "user-1")
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}
}

func TestSubmitRejectsSixthActiveJob(t *testing.T) {
	f := newServiceFixture()
	for _, kind := range domain.JobKinds {
		f.jobs.Put(domain.Job{UserID: "user-1", Kind: kind, Status: domain.JobStatusProcessing, Prompt: "x"})
	}
	requests := []SubmitRequest{
		{JobType: "image_generation", Prompt: "another"},
		{JobType: "video_generation", Prompt: "another"},
		{JobType: "audio_generation", Prompt: "another"},
		{JobType: "lip_sync", Prompt: "another", InputParameters: map[string]any{"video_url": "https://cdn.example.com/talk.mp4"}},
		{JobType: "face_swap", Prompt: "another", InputParameters: map[string]any{
			"input_image": "https://cdn.example.com/base.png",
			"swap_image":  "https://cdn.example.com/face.png",
		}},
	}
	for _, req := range requests {
		_, err := f.svc.Submit(context.Background(), "user-1", req)
		var capErr *CapacityError
		if !errors.As(err, &capErr) || capErr.Reason != ReasonCeiling || capErr.Total != 5 || capErr.Max != 5 {
			t.Fatalf("%s: err = %v", req.JobType, err)
		}
	}
	if len(f.nudger.ids) != 0 {
		t.Fatalf("rejected submissions nudged workers")
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   SubmitRequest
		field string
	}{
		{"empty prompt", SubmitRequest{JobType: "image_generation", Prompt: "   "}, "prompt"},
		{"long prompt", SubmitRequest{JobType: "image_generation", Prompt: strings.Repeat("é", 1001)}, "prompt"},
		{"unknown type", SubmitRequest{JobType: "upscale", Prompt: "x"}, "jobType"},
		{"bad duration", SubmitRequest{JobType: "video_generation", Prompt: "x", InputParameters: map[string]any{"duration": 7}}, "duration"},
		{"lip sync without video", SubmitRequest{JobType: "lip_sync", Prompt: "x"}, "video_url"},
	}
	for _, tc := range tests {
		f := newServiceFixture()
		_, err := f.svc.Submit(context.Background(), "user-1", tc.req)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: err = %v, want *ValidationError", tc.name, err)
		}
		if verr.Details[tc.field] == "" {
			t.Fatalf("%s: details = %v, want %s", tc.name, verr.Details, tc.field)
		}
		if active, _ := f.jobs.ListActive(context.Background(), "user-1"); len(active) != 0 {
			t.Fatalf("%s: invalid request persisted", tc.name)
		}
	}
}

func TestSubmitAcceptsMaxLengthPrompt(t *testing.T) {
	f := newServiceFixture()
	if _, err := f.svc.Submit(context.Background(), "user-1", SubmitRequest{JobType: "audio_generation", Prompt: strings.Repeat("a", 1000)}); err != nil {
		t.Fatalf("1000 character prompt rejected: %v", err)
	}
}

func TestSubmitStoresAliasedKinds(t *testing.T) {
	f := newServiceFixture()
	job, err := f.svc.Submit(context.Background(), "user-1", SubmitRequest{
		JobType:         "face_swap",
		Prompt:          "swap",
		InputParameters: map[string]any{"inputImage": "https://cdn.example.com/a.png", "swapImage": "https://cdn.example.com/b.png"},
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	stored, _ := f.jobs.Get(job.ID)
	if stored.Type != domain.JobTypeImageGeneration || stored.Kind != domain.JobKindFaceSwap {
		t.Fatalf("stored type/kind = %s/%s", stored.Type, stored.Kind)
	}
	if stored.InputParameters["is_face_swap"] != true {
		t.Fatalf("alias flag missing: %v", stored.InputParameters)
	}
}

func TestSubmitToleratesSideEffectFailures(t *testing.T) {
	f := newServiceFixture()
	f.nudger.err = errors.New("notify failed")
	f.notes.Err = errors.New("insert failed")
	job, err := f.svc.Submit(context.Background(), "user-1", SubmitRequest{JobType: "video_generation", Prompt: "waves"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if _, ok := f.jobs.Get(job.ID); !ok {
		t.Fatalf("job not persisted")
	}
}

func TestConcurrentSubmissionsRespectLimits(t *testing.T) {
	f := newServiceFixture()
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := map[domain.JobKind]int{}
	for i := 0; i < 4; i++ {
		for _, kind := range domain.JobKinds {
			wg.Add(1)
			go func(kind domain.JobKind) {
				defer wg.Done()
				params := map[string]any{}
				switch kind {
				case domain.JobKindLipSync:
					params["video_url"] = "https://cdn.example.com/v.mp4"
				case domain.JobKindFaceSwap:
					params["input_image"] = "https://cdn.example.com/a.png"
					params["swap_image"] = "https://cdn.example.com/b.png"
				}
				if _, err := f.svc.Submit(context.Background(), "user-1", SubmitRequest{JobType: string(kind), Prompt: "p", InputParameters: params}); err == nil {
					mu.Lock()
					accepted[kind]++
					mu.Unlock()
				}
			}(kind)
		}
	}
	wg.Wait()
	for kind, n := range accepted {
		if n != 1 {
			t.Fatalf("%s accepted %d times", kind, n)
		}
	}
	active, _ := f.jobs.ListActive(context.Background(), "user-1")
	if len(active) != 5 {
		t.Fatalf("active = %d, want 5", len(active))
	}
}

func TestListClampsLimitAndReportsQueue(t *testing.T) {
	f := newServiceFixture()
	for i := 0; i < 3; i++ {
		f.jobs.Put(domain.Job{UserID: "user-1", Kind: domain.JobKindImage, Status: domain.JobStatusCompleted})
	}
	f.jobs.Put(domain.Job{UserID: "user-1", Kind: domain.JobKindVideo, Status: domain.JobStatusPending})
	f.jobs.Put(domain.Job{UserID: "user-2", Kind: domain.JobKindVideo, Status: domain.JobStatusPending})

	jobs, status, err := f.svc.List(context.Background(), domain.JobFilter{UserID: "user-1", Limit: 500})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(jobs) != 4 {
		t.Fatalf("jobs = %d, want 4", len(jobs))
	}
	if status.ActiveJobs != 1 || status.MaxAllowed != 5 || status.Available != 4 {
		t.Fatalf("queue status = %+v", status)
	}
	if ClampLimit(0) != 10 || ClampLimit(500) != 100 || ClampLimit(25) != 25 {
		t.Fatalf("ClampLimit bounds wrong")
	}
}
