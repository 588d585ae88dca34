package domain

import (
	"strings"
	"time"
)

// MediaKind enumerates stored artifact categories.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
)

// ParseMediaKind accepts both singular and plural forms ("images", "video").
func ParseMediaKind(raw string) (MediaKind, bool) {
	v := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "s")
	switch MediaKind(v) {
	case MediaKindImage, MediaKindVideo, MediaKindAudio:
		return MediaKind(v), true
	}
	return "", false
}

// Retention returns how long a materialized artifact is kept before cleanup.
func (k MediaKind) Retention() time.Duration {
	if k == MediaKindImage {
		return 3 * 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}

// DefaultExtension is used when the downloaded content type is unknown.
func (k MediaKind) DefaultExtension() string {
	switch k {
	case MediaKindVideo:
		return ".mp4"
	case MediaKindAudio:
		return ".mp3"
	default:
		return ".png"
	}
}

// MediaItem is the metadata row written after an artifact is materialized.
type MediaItem struct {
	ID           string
	UserID       string
	JobID        string
	Kind         MediaKind
	Prompt       string
	PredictionID string
	SourceURL    string
	Bucket       string
	StoragePath  string
	PublicURL    string
	ContentType  string
	Bytes        int64
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
