package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"genqueue/internal/infra"
)

// ErrMissingAPIToken indicates that the client was configured without credentials.
var ErrMissingAPIToken = errors.New("replicate: api token is required")

// Prediction statuses reported by the provider.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Options configures the Replicate client.
type Options struct {
	APIToken       string
	BaseURL        string
	RatePerSecond  int
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the Replicate predictions API.
type Client struct {
	token   string
	rest    *resty.Client
	limiter *rate.Limiter
	logger  *infra.Logger
}

// PredictionRequest targets either a model ("owner/name") or a pinned
// version ("owner/name:version" or a bare version hash).
type PredictionRequest struct {
	Model string
	Input map[string]any
}

// Prediction mirrors the provider's prediction resource.
type Prediction struct {
	ID     string          `json:"id"`
	Model  string          `json:"model"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	Logs   string          `json:"logs"`
}

// Terminal reports whether the prediction can no longer change.
func (p *Prediction) Terminal() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// ErrorMessage renders the provider error field as text.
func (p *Prediction) ErrorMessage() string {
	switch v := p.Error.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, _ := json.Marshal(v)
		return string(raw)
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	var rest *resty.Client
	if opts.HTTPClient != nil {
		rest = resty.NewWithClient(opts.HTTPClient)
	} else {
		rest = resty.New()
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		rest.SetTimeout(timeout)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	token := strings.TrimSpace(opts.APIToken)
	rest.SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(token)

	limit := rate.Inf
	burst := 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		burst = opts.RatePerSecond
	}

	logger := opts.Logger
	if logger == nil {
		l := zerolog.New(io.Discard)
		logger = &l
	}
	return &Client{
		token:   token,
		rest:    rest,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.token != ""
}

// CreatePrediction submits a prediction once.
func (c *Client) CreatePrediction(ctx context.Context, req PredictionRequest) (*Prediction, error) {
	if !c.HasCredentials() {
		return nil, &APIError{Kind: ErrorAuthentication, Message: ErrMissingAPIToken.Error()}
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, &APIError{Kind: ErrorUnknownModel, Message: "model is required"}
	}
	path, body := predictionTarget(model, req.Input)

	var pred Prediction
	if err := c.do(ctx, http.MethodPost, path, body, &pred); err != nil {
		return nil, err
	}
	if pred.ID == "" {
		return nil, &APIError{Kind: ErrorProvider, Message: "prediction id missing from response"}
	}
	c.logger.Debug().Str("prediction_id", pred.ID).Str("model", model).Msg("prediction created")
	return &pred, nil
}

// GetPrediction fetches the current state of a prediction.
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	if !c.HasCredentials() {
		return nil, &APIError{Kind: ErrorAuthentication, Message: ErrMissingAPIToken.Error()}
	}
	var pred Prediction
	if err := c.do(ctx, http.MethodGet, "/predictions/"+id, nil, &pred); err != nil {
		return nil, err
	}
	return &pred, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out *Prediction) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var apiErr errorResponse
	req := c.rest.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &APIError{Kind: ErrorProvider, Message: fmt.Sprintf("http request: %v", err)}
	}
	if resp.IsError() {
		detail := apiErr.Detail
		if detail == "" {
			detail = apiErr.Title
		}
		if detail == "" {
			detail = string(resp.Body())
		}
		return classify(resp.StatusCode(), detail)
	}
	return nil
}

// predictionTarget picks the endpoint for official models or pinned versions.
func predictionTarget(model string, input map[string]any) (string, map[string]any) {
	if input == nil {
		input = map[string]any{}
	}
	if _, version, ok := strings.Cut(model, ":"); ok {
		return "/predictions", map[string]any{"version": version, "input": input}
	}
	if !strings.Contains(model, "/") {
		return "/predictions", map[string]any{"version": model, "input": input}
	}
	return "/models/" + model + "/predictions", map[string]any{"input": input}
}
