package domain

import (
	"testing"
	"time"
)

func TestParseJobKindResolvesAliases(t *testing.T) {
	tests := []struct {
		raw      string
		kind     JobKind
		physical JobType
		media    MediaKind
	}{
		{"image_generation", JobKindImage, JobTypeImageGeneration, MediaKindImage},
		{" Video_Generation ", JobKindVideo, JobTypeVideoGeneration, MediaKindVideo},
		{"audio_generation", JobKindAudio, JobTypeAudioGeneration, MediaKindAudio},
		{"lip_sync", JobKindLipSync, JobTypeVideoGeneration, MediaKindVideo},
		{"face_swap", JobKindFaceSwap, JobTypeImageGeneration, MediaKindImage},
	}
	for _, tc := range tests {
		kind, ok := ParseJobKind(tc.raw)
		if !ok {
			t.Fatalf("ParseJobKind(%q) not ok", tc.raw)
		}
		if kind != tc.kind {
			t.Fatalf("ParseJobKind(%q) = %q, want %q", tc.raw, kind, tc.kind)
		}
		if got := kind.PhysicalType(); got != tc.physical {
			t.Fatalf("%s.PhysicalType() = %q, want %q", kind, got, tc.physical)
		}
		if got := kind.MediaKind(); got != tc.media {
			t.Fatalf("%s.MediaKind() = %q, want %q", kind, got, tc.media)
		}
	}
	if _, ok := ParseJobKind("upscale"); ok {
		t.Fatalf("expected unknown kind to be rejected")
	}
}

func TestKindFromStoredHonorsAliasFlags(t *testing.T) {
	if got := KindFromStored(JobTypeVideoGeneration, JobKindLipSync.AliasFlags()); got != JobKindLipSync {
		t.Fatalf("lip sync flags resolved to %q", got)
	}
	if got := KindFromStored(JobTypeImageGeneration, map[string]any{"is_face_swap": true}); got != JobKindFaceSwap {
		t.Fatalf("face swap flag resolved to %q", got)
	}
	if got := KindFromStored(JobTypeImageGeneration, nil); got != JobKindImage {
		t.Fatalf("plain image resolved to %q", got)
	}
}

func TestJobStatusTransitions(t *testing.T) {
	allowed := map[JobStatus][]JobStatus{
		JobStatusPending:    {JobStatusProcessing, JobStatusCompleted, JobStatusFailed},
		JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
	}
	all := []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			if got := from.CanTransition(to); got != want {
				t.Fatalf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestMediaRetention(t *testing.T) {
	if MediaKindImage.Retention() != 72*time.Hour {
		t.Fatalf("image retention = %s", MediaKindImage.Retention())
	}
	if MediaKindVideo.Retention() != 168*time.Hour {
		t.Fatalf("video retention = %s", MediaKindVideo.Retention())
	}
	if kind, ok := ParseMediaKind("videos"); !ok || kind != MediaKindVideo {
		t.Fatalf("ParseMediaKind(videos) = %q, %v", kind, ok)
	}
}
