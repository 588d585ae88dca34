package jobs

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genqueue/internal/storage"
)

// minRawBase64 keeps short tokens from being mistaken for inline payloads.
const minRawBase64 = 128

func isInlineData(v string) bool {
	if strings.HasPrefix(v, "data:") {
		return strings.Contains(v, ";base64,")
	}
	if len(v) < minRawBase64 || strings.Contains(v, "://") {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(v)
	return err == nil
}

// decodeInline returns the payload and its declared content type.
func decodeInline(v string) ([]byte, string, error) {
	contentType := "application/octet-stream"
	payload := v
	if rest, ok := strings.CutPrefix(v, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("malformed data uri")
		}
		if mt, _, _ := strings.Cut(header, ";"); mt != "" {
			contentType = mt
		}
		payload = data
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return raw, contentType, nil
}

// Stager uploads inline inputs to the temporary bucket so the provider can
// fetch them by URL.
type Stager struct {
	temp   storage.ObjectStorage
	logger zerolog.Logger
}

func NewStager(temp storage.ObjectStorage, logger zerolog.Logger) *Stager {
	return &Stager{temp: temp, logger: logger}
}

// Stage replaces inline values of fields in input with public URLs. The
// returned cleanup removes every staged object and is safe to call when Stage
// fails.
func (s *Stager) Stage(ctx context.Context, jobID string, fields []string, input map[string]any) (map[string]any, func(), error) {
	out := copyParams(input)
	var keys []string
	cleanup := func() {
		if len(keys) == 0 {
			return
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		for _, key := range keys {
			if err := s.temp.Delete(cctx, key); err != nil {
				s.logger.Warn().Err(err).Str("job_id", jobID).Str("key", key).Msg("temp input cleanup failed")
			}
		}
	}

	stage := func(field, v string) (string, error) {
		raw, contentType, err := decodeInline(v)
		if err != nil {
			return "", fmt.Errorf("stage %s: %w", field, err)
		}
		ext := contentExtensions[contentType]
		if ext == "" {
			ext = ".bin"
		}
		key := fmt.Sprintf("%s/%s-%s%s", jobID, field, uuid.NewString(), ext)
		if err := s.temp.Upload(ctx, key, bytes.NewReader(raw), int64(len(raw)), contentType); err != nil {
			return "", fmt.Errorf("stage %s: %w", field, err)
		}
		keys = append(keys, key)
		return s.temp.GetURL(key), nil
	}

	for _, field := range fields {
		switch v := out[field].(type) {
		case string:
			if !isInlineData(v) {
				continue
			}
			u, err := stage(field, v)
			if err != nil {
				return nil, cleanup, err
			}
			out[field] = u
		case []string, []any:
			items, ok := paramStrings(out, field)
			if !ok {
				continue
			}
			staged := make([]string, len(items))
			for i, item := range items {
				staged[i] = item
				if !isInlineData(item) {
					continue
				}
				u, err := stage(field, item)
				if err != nil {
					return nil, cleanup, err
				}
				staged[i] = u
			}
			out[field] = staged
		}
	}
	return out, cleanup, nil
}
