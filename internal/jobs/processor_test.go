package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"genqueue/internal/domain"
	"genqueue/internal/providers/replicate"
	"genqueue/internal/storage"
	"genqueue/internal/testsupport"
)

type fakeProvider struct {
	mu          sync.Mutex
	submitErr   error
	awaitPred   *replicate.Prediction
	awaitErr    error
	getPred     *replicate.Prediction
	getErr      error
	submitted   []replicate.PredictionRequest
	awaitBudget []int
}

func (f *fakeProvider) Submit(ctx context.Context, req replicate.PredictionRequest) (*replicate.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &replicate.Prediction{ID: "pred-1", Status: replicate.StatusStarting}, nil
}

func (f *fakeProvider) Await(ctx context.Context, id string, maxAttempts int) (*replicate.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awaitBudget = append(f.awaitBudget, maxAttempts)
	return f.awaitPred, f.awaitErr
}

func (f *fakeProvider) Get(ctx context.Context, id string) (*replicate.Prediction, error) {
	return f.getPred, f.getErr
}

type fakeDownloader struct {
	files map[string]*Downloaded
	calls []string
}

func (d *fakeDownloader) Download(ctx context.Context, url string) (*Downloaded, error) {
	d.calls = append(d.calls, url)
	if f, ok := d.files[url]; ok {
		return f, nil
	}
	return nil, errors.New("status 404")
}

func succeeded(urls ...string) *replicate.Prediction {
	raw, _ := json.Marshal(urls)
	return &replicate.Prediction{ID: "pred-1", Status: replicate.StatusSucceeded, Output: raw}
}

type processorFixture struct {
	proc       *Processor
	jobs       *testsupport.MemoryJobs
	media      *testsupport.MemoryMedia
	notes      *testsupport.MemoryNotifications
	buckets    *storage.BucketSet
	provider   *fakeProvider
	downloader *fakeDownloader
	now        time.Time
}

func newProcessorFixture() *processorFixture {
	f := &processorFixture{
		jobs:       testsupport.NewMemoryJobs(),
		media:      testsupport.NewMemoryMedia(),
		notes:      testsupport.NewMemoryNotifications(),
		buckets:    testsupport.NewBucketSet(),
		provider:   &fakeProvider{},
		downloader: &fakeDownloader{files: map[string]*Downloaded{}},
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.jobs.Now = func() time.Time { return f.now }
	mat := NewMaterializer(f.buckets, f.media, f.downloader, zerolog.Nop())
	mat.now = func() time.Time { return f.now }
	f.proc = NewProcessor(ProcessorConfig{
		Jobs:         f.jobs,
		Kinds:        testRegistry(),
		Provider:     f.provider,
		Stager:       NewStager(f.buckets.Temp, zerolog.Nop()),
		Materializer: mat,
		Notifier:     NewNotifier(f.notes, zerolog.Nop()),
		PollInterval: 10 * time.Second,
		Logger:       zerolog.Nop(),
	})
	f.proc.now = func() time.Time { return f.now }
	return f
}

func (f *processorFixture) pending(kind domain.JobKind, params map[string]any) domain.Job {
	return f.jobs.Put(domain.Job{
		UserID:          "user-1",
		Kind:            kind,
		Status:          domain.JobStatusPending,
		Prompt:          "a cat",
		InputParameters: params,
		CreatedAt:       f.now.Add(-30 * time.Second),
	})
}

func TestProcessCompletesImageJob(t *testing.T) {
	f := newProcessorFixture()
	job := f.pending(domain.JobKindImage, map[string]any{"aspect_ratio": "1:1", "num_outputs": 1})
	f.provider.awaitPred = succeeded("https://replicate.delivery/out.png")
	f.downloader.files["https://replicate.delivery/out.png"] = &Downloaded{Body: []byte("png"), ContentType: "image/png"}

	if err := f.proc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	got, _ := f.jobs.Get(job.ID)
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.ProviderReference != "pred-1" {
		t.Fatalf("provider reference = %q", got.ProviderReference)
	}
	items := f.media.All()
	if len(items) != 1 {
		t.Fatalf("media rows = %d, want 1", len(items))
	}
	item := items[0]
	if item.Bucket != "generated-images" || !strings.HasSuffix(item.StoragePath, ".png") {
		t.Fatalf("media item = %+v", item)
	}
	if !item.ExpiresAt.Equal(item.CreatedAt.Add(72 * time.Hour)) {
		t.Fatalf("expires_at = %s, created_at = %s", item.ExpiresAt, item.CreatedAt)
	}
	if got.OutputURL != item.PublicURL || len(got.ResultData.URLs) != 1 {
		t.Fatalf("output = %q result = %+v", got.OutputURL, got.ResultData)
	}
	if got.ProcessingTimeSeconds == nil || *got.ProcessingTimeSeconds != 30 {
		t.Fatalf("processing seconds = %v", got.ProcessingTimeSeconds)
	}
	if f.provider.awaitBudget[0] != 30 {
		t.Fatalf("poll budget = %d, want 30", f.provider.awaitBudget[0])
	}
	if types := f.notes.Types("user-1"); len(types) != 1 || types[0] != domain.NotificationGenerationCompleted {
		t.Fatalf("notifications = %v", types)
	}
}

func TestProcessToleratesPartialMaterialization(t *testing.T) {
	f := newProcessorFixture()
	job := f.pending(domain.JobKindVideo, map[string]any{"duration": 5, "aspect_ratio": "16:9"})
	f.provider.awaitPred = succeeded("https://x/missing.mp4", "https://x/ok.mp4")
	f.downloader.files["https://x/ok.mp4"] = &Downloaded{Body: []byte("mp4"), ContentType: "video/mp4"}

	if err := f.proc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	got, _ := f.jobs.Get(job.ID)
	if got.Status != domain.JobStatusCompleted || got.ResultData.Skipped != 1 || got.ResultData.Predicted != 2 {
		t.Fatalf("job = %+v result = %+v", got, got.ResultData)
	}
	item := f.media.All()[0]
	if item.Bucket != "generated-videos" || !item.ExpiresAt.Equal(f.now.Add(7*24*time.Hour)) {
		t.Fatalf("media item = %+v", item)
	}
	if f.provider.awaitBudget[0] != 60 {
		t.Fatalf("poll budget = %d, want 60", f.provider.awaitBudget[0])
	}
}

func TestProcessFailsWhenNoOutputSurvives(t *testing.T) {
	f := newProcessorFixture()
	job := f.pending(domain.JobKindAudio, nil)
	f.provider.awaitPred = &replicate.Prediction{ID: "pred-1", Status: replicate.StatusSucceeded, Output: json.RawMessage(`["not-a-url", 3]`)}

	if err := f.proc.Process(context.Background(), job.ID); err == nil {
		t.Fatalf("expected error for empty output")
	}
	got, _ := f.jobs.Get(job.ID)
	if got.Status != domain.JobStatusFailed || got.ErrorMessage == "" {
		t.Fatalf("job = %+v", got)
	}
	if len(f.media.All()) != 0 {
		t.Fatalf("media rows written for failed job")
	}
	if types := f.notes.Types("user-1"); len(types) != 1 || types[0] != domain.NotificationGenerationFailed {
		t.Fatalf("notifications = %v", types)
	}
}

func TestProcessTimeoutFailsJob(t *testing.T) {
	f := newProcessorFixture()
	job := f.pending(domain.JobKindImage, nil)
	f.provider.awaitErr = &replicate.APIError{Kind: replicate.ErrorTimeout, Message: "generation timed out after 30 polling attempts"}

	err := f.proc.Process(context.Background(), job.ID)
	if replicate.HTTPStatusFor(err) != 500 {
		t.Fatalf("err = %v", err)
	}
	got, _ := f.jobs.Get(job.ID)
	if got.Status != domain.JobStatusFailed || !strings.Contains(got.ErrorMessage, "timed out") {
		t.Fatalf("job = %+v", got)
	}
}

func TestProcessSubmitFailureMapsTaxonomy(t *testing.T) {
	f := newProcessorFixture()
	job := f.pending(domain.JobKindImage, nil)
	f.provider.submitErr = &replicate.APIError{Kind: replicate.ErrorPayment, StatusCode: 402, Message: "spend limit"}

	err := f.proc.Process(context.Background(), job.ID)
	if replicate.HTTPStatusFor(err) != 402 {
		t.Fatalf("status = %d, want 402", replicate.HTTPStatusFor(err))
	}
	got, _ := f.jobs.Get(job.ID)
	if got.Status != domain.JobStatusFailed || got.ProviderReference != "" {
		t.Fatalf("job = %+v", got)
	}
}

func TestProcessIsIdempotentForTerminalJobs(t *testing.T) {
	f := newProcessorFixture()
	job := f.pending(domain.JobKindImage, nil)
	f.provider.awaitPred = succeeded("https://x/a.png")
	f.downloader.files["https://x/a.png"] = &Downloaded{Body: []byte("png"), ContentType: "image/png"}

	if err := f.proc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("first Process returned error: %v", err)
	}
	before, _ := f.jobs.Get(job.ID)
	if err := f.proc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("second Process returned error: %v", err)
	}
	after, _ := f.jobs.Get(job.ID)
	if after.Status != before.Status || after.OutputURL != before.OutputURL {
		t.Fatalf("terminal job changed: %+v -> %+v", before, after)
	}
	if len(f.provider.submitted) != 1 || len(f.media.All()) != 1 {
		t.Fatalf("submitted = %d media = %d", len(f.provider.submitted), len(f.media.All()))
	}
}

func TestProcessResumesProcessingJob(t *testing.T) {
	f := newProcessorFixture()
	job := f.pending(domain.JobKindImage, nil)
	if err := f.jobs.MarkProcessing(context.Background(), job.ID, "pred-existing"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	f.provider.awaitPred = succeeded("https://x/a.png")
	f.downloader.files["https://x/a.png"] = &Downloaded{Body: []byte("png"), ContentType: "image/png"}

	if err := f.proc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if len(f.provider.submitted) != 0 {
		t.Fatalf("resumed job was resubmitted")
	}
	if got, _ := f.jobs.Get(job.ID); got.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestProcessStagesInlineInputsAndCleansUp(t *testing.T) {
	f := newProcessorFixture()
	payload := base64.StdEncoding.EncodeToString([]byte("fake-png-bytes"))
	job := f.pending(domain.JobKindFaceSwap, map[string]any{
		"input_image": "data:image/png;base64," + payload,
		"swap_image":  "https://cdn.example.com/face.png",
	})
	f.provider.awaitPred = succeeded("https://x/swapped.png")
	f.downloader.files["https://x/swapped.png"] = &Downloaded{Body: []byte("png"), ContentType: "image/png"}

	if err := f.proc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	input := f.provider.submitted[0].Input
	staged, _ := input["input_image"].(string)
	if !strings.HasPrefix(staged, "https://storage.test/temp-inputs/"+job.ID+"/") {
		t.Fatalf("input_image = %q, want staged url", staged)
	}
	if input["swap_image"] != "https://cdn.example.com/face.png" {
		t.Fatalf("swap_image rewritten: %v", input["swap_image"])
	}
	temp := testsupport.Bucket(f.buckets.Temp)
	if temp.Len() != 0 || len(temp.Deleted) != 1 {
		t.Fatalf("temp objects = %d deleted = %v", temp.Len(), temp.Deleted)
	}
}

func TestMaterializerCompensatesFailedIndexing(t *testing.T) {
	f := newProcessorFixture()
	job := f.pending(domain.JobKindImage, nil)
	f.media.CreateErr = errors.New("connection reset")
	f.provider.awaitPred = succeeded("https://x/a.png")
	f.downloader.files["https://x/a.png"] = &Downloaded{Body: []byte("png"), ContentType: "image/png"}

	_ = f.proc.Process(context.Background(), job.ID)

	images := testsupport.Bucket(f.buckets.Images)
	if images.Len() != 0 || len(images.Deleted) != 1 {
		t.Fatalf("uploaded object not compensated: len=%d deleted=%v", images.Len(), images.Deleted)
	}
	if got, _ := f.jobs.Get(job.ID); got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}

func TestMaterializerReusesIndexedOutputs(t *testing.T) {
	f := newProcessorFixture()
	job := f.pending(domain.JobKindImage, nil)
	f.downloader.files["https://x/a.png"] = &Downloaded{Body: []byte("png"), ContentType: "image/png"}
	mat := NewMaterializer(f.buckets, f.media, f.downloader, zerolog.Nop())

	first, err := mat.Materialize(context.Background(), &job, "pred-1", []string{"https://x/a.png"})
	if err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	second, err := mat.Materialize(context.Background(), &job, "pred-1", []string{"https://x/a.png"})
	if err != nil {
		t.Fatalf("second Materialize returned error: %v", err)
	}
	if len(f.media.All()) != 1 || len(f.downloader.calls) != 1 {
		t.Fatalf("media = %d downloads = %d", len(f.media.All()), len(f.downloader.calls))
	}
	if first.URLs[0] != second.URLs[0] {
		t.Fatalf("urls differ: %v vs %v", first.URLs, second.URLs)
	}
}

func TestReconcileFinalizesStaleJobs(t *testing.T) {
	f := newProcessorFixture()
	succeededJob := f.pending(domain.JobKindImage, nil)
	_ = f.jobs.MarkProcessing(context.Background(), succeededJob.ID, "pred-1")
	f.now = f.now.Add(15 * time.Minute)

	f.provider.getPred = succeeded("https://x/a.png")
	f.downloader.files["https://x/a.png"] = &Downloaded{Body: []byte("png"), ContentType: "image/png"}

	rec := NewReconciler(f.jobs, f.proc, 10*time.Minute, zerolog.Nop())
	n, err := rec.RunOnce(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	if got, _ := f.jobs.Get(succeededJob.ID); got.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
}

func TestReconcileFailsOverdueRunningPrediction(t *testing.T) {
	f := newProcessorFixture()
	job := f.pending(domain.JobKindImage, nil)
	_ = f.jobs.MarkProcessing(context.Background(), job.ID, "pred-1")
	stored, _ := f.jobs.Get(job.ID)

	f.provider.getPred = &replicate.Prediction{ID: "pred-1", Status: replicate.StatusProcessing}
	f.now = f.now.Add(5 * time.Minute)
	if err := f.proc.Reconcile(context.Background(), stored); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if got, _ := f.jobs.Get(job.ID); got.Status != domain.JobStatusProcessing {
		t.Fatalf("running prediction within budget should stay processing, got %s", got.Status)
	}

	f.now = f.now.Add(time.Hour)
	_ = f.proc.Reconcile(context.Background(), stored)
	got, _ := f.jobs.Get(job.ID)
	if got.Status != domain.JobStatusFailed || !strings.Contains(got.ErrorMessage, "timed out") {
		t.Fatalf("job = %+v", got)
	}
}

func TestExpirySweeperRemovesObjectsAndRows(t *testing.T) {
	f := newProcessorFixture()
	images := testsupport.Bucket(f.buckets.Images)
	_ = images.Upload(context.Background(), "user-1/old.png", strings.NewReader("x"), 1, "image/png")
	_ = f.media.Create(context.Background(), &domain.MediaItem{
		UserID: "user-1", JobID: "job-1", Kind: domain.MediaKindImage, SourceURL: "https://x/old.png",
		Bucket: "generated-images", StoragePath: "user-1/old.png", ExpiresAt: f.now.Add(-time.Hour),
	})
	_ = f.media.Create(context.Background(), &domain.MediaItem{
		UserID: "user-1", JobID: "job-1", Kind: domain.MediaKindImage, SourceURL: "https://x/new.png",
		Bucket: "generated-images", StoragePath: "user-1/new.png", ExpiresAt: f.now.Add(time.Hour),
	})

	sweeper := NewExpirySweeper(f.media, f.buckets, zerolog.Nop())
	sweeper.now = func() time.Time { return f.now }
	n, err := sweeper.RunOnce(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	if images.Len() != 0 || len(f.media.All()) != 1 {
		t.Fatalf("objects = %d rows = %d", images.Len(), len(f.media.All()))
	}
}

func TestDeleteMediaKeepsRowWhenObjectDeleteFails(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()
	images := testsupport.Bucket(f.buckets.Images)
	_ = images.Upload(ctx, "user-1/a.png", strings.NewReader("x"), 1, "image/png")
	item := &domain.MediaItem{
		UserID: "user-1", JobID: "job-1", Kind: domain.MediaKindImage, SourceURL: "https://x/a.png",
		Bucket: "generated-images", StoragePath: "user-1/a.png", ExpiresAt: f.now.Add(time.Hour),
	}
	_ = f.media.Create(ctx, item)

	images.DeleteErr = errors.New("storage unavailable")
	if err := DeleteMedia(ctx, f.media, f.buckets, "user-1", domain.MediaKindImage, item.ID); err == nil {
		t.Fatalf("DeleteMedia succeeded with failing storage")
	}
	if len(f.media.All()) != 1 || images.Len() != 1 {
		t.Fatalf("rows = %d objects = %d, want both kept", len(f.media.All()), images.Len())
	}

	images.DeleteErr = nil
	if err := DeleteMedia(ctx, f.media, f.buckets, "user-1", domain.MediaKindImage, item.ID); err != nil {
		t.Fatalf("DeleteMedia retry returned error: %v", err)
	}
	if len(f.media.All()) != 0 || images.Len() != 0 {
		t.Fatalf("rows = %d objects = %d, want none", len(f.media.All()), images.Len())
	}
}

func TestDeleteMediaToleratesMissingObject(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()
	item := &domain.MediaItem{
		UserID: "user-1", JobID: "job-1", Kind: domain.MediaKindImage, SourceURL: "https://x/gone.png",
		Bucket: "generated-images", StoragePath: "user-1/gone.png", ExpiresAt: f.now.Add(time.Hour),
	}
	_ = f.media.Create(ctx, item)
	testsupport.Bucket(f.buckets.Images).DeleteErr = storage.ErrObjectNotFound
	if err := DeleteMedia(ctx, f.media, f.buckets, "user-1", domain.MediaKindImage, item.ID); err != nil {
		t.Fatalf("DeleteMedia returned error: %v", err)
	}
	if len(f.media.All()) != 0 {
		t.Fatalf("row kept after missing object")
	}
}

func TestWorkerClaimsAndProcesses(t *testing.T) {
	f := newProcessorFixture()
	job := f.pending(domain.JobKindImage, nil)
	f.provider.awaitPred = succeeded("https://x/a.png")
	f.downloader.files["https://x/a.png"] = &Downloaded{Body: []byte("png"), ContentType: "image/png"}

	ctx, cancel := context.WithCancel(context.Background())
	wake := make(chan struct{})
	w := NewWorker(1, f.jobs, f.proc, time.Minute, 5*time.Millisecond, wake, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		if got, _ := f.jobs.Get(job.ID); got.Status == domain.JobStatusCompleted {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatalf("job not processed by worker")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}
