package replicate

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
)

// NormalizeOutput extracts downloadable URLs from a prediction output, which
// may be a single string or an array. Non-http entries are dropped and logged.
func NormalizeOutput(raw json.RawMessage, logger zerolog.Logger) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var candidates []any
	var single any
	if err := json.Unmarshal(raw, &single); err != nil {
		logger.Warn().Err(err).Msg("prediction output is not valid json")
		return nil
	}
	switch v := single.(type) {
	case []any:
		candidates = v
	default:
		candidates = []any{v}
	}

	urls := make([]string, 0, len(candidates))
	for i, c := range candidates {
		s, ok := c.(string)
		s = strings.TrimSpace(s)
		if !ok || !strings.HasPrefix(s, "http") {
			logger.Warn().Int("index", i).Interface("value", c).Msg("dropping non-url prediction output")
			continue
		}
		urls = append(urls, s)
	}
	return urls
}
