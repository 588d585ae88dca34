package jobs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Downloaded is a fetched provider artifact.
type Downloaded struct {
	Body        []byte
	ContentType string
}

// Downloader fetches provider output URLs.
type Downloader interface {
	Download(ctx context.Context, url string) (*Downloaded, error)
}

// HTTPDownloader fetches artifacts with resty and rejects bodies over maxBytes.
type HTTPDownloader struct {
	client   *resty.Client
	maxBytes int64
}

// NewHTTPDownloader builds a downloader. httpClient may be nil.
func NewHTTPDownloader(httpClient *http.Client, maxBytes int64) *HTTPDownloader {
	var client *resty.Client
	if httpClient != nil {
		client = resty.NewWithClient(httpClient)
	} else {
		client = resty.New().SetTimeout(5 * time.Minute)
	}
	client.SetRetryCount(2).SetRetryWaitTime(time.Second)
	return &HTTPDownloader{client: client, maxBytes: maxBytes}
}

func (d *HTTPDownloader) Download(ctx context.Context, url string) (*Downloaded, error) {
	resp, err := d.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("download %s: empty body", url)
	}
	if d.maxBytes > 0 && int64(len(body)) > d.maxBytes {
		return nil, fmt.Errorf("download %s: %d bytes exceeds limit of %d", url, len(body), d.maxBytes)
	}
	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return &Downloaded{Body: body, ContentType: contentType}, nil
}
