package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// PredictionConfig describes a REST provider that follows the prediction job
// shape: POST creates a job, GET reports it, POST .../cancel retracts it.
type PredictionConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	SubmitPath string        // default /v1/predictions
	StatusPath string        // default /v1/predictions/{id}
	CancelPath string        // default /v1/predictions/{id}/cancel; "-" disables cancel
	Timeout    time.Duration // per HTTP request
	RateLimit  float64       // status checks per second across all runs; 0 = unlimited
}

// PredictionAdapter submits and tracks jobs on a prediction-style REST API.
type PredictionAdapter struct {
	cfg     PredictionConfig
	client  *resty.Client
	limiter *rate.Limiter
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

func NewPredictionAdapter(cfg PredictionConfig) *PredictionAdapter {
	if cfg.SubmitPath == "" {
		cfg.SubmitPath = "/v1/predictions"
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = "/v1/predictions/{id}"
	}
	if cfg.CancelPath == "" {
		cfg.CancelPath = "/v1/predictions/{id}/cancel"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	// No retries: a retried submission could create a second billed job.
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	a := &PredictionAdapter{cfg: cfg, client: client}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return a
}

func (a *PredictionAdapter) Submit(ctx context.Context, model string, inputs map[string]any) (Handle, error) {
	var out prediction
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"model": model, "input": inputs}).
		Post(a.cfg.SubmitPath)
	if err != nil {
		return Handle{}, fmt.Errorf("%s submit: %w", a.cfg.Name, err)
	}
	if !resp.IsSuccess() {
		return Handle{}, fmt.Errorf("%s submit: status %d: %s", a.cfg.Name, resp.StatusCode(), errorText(resp))
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Handle{}, fmt.Errorf("%s submit: decode response: %w", a.cfg.Name, err)
	}
	if out.ID == "" {
		return Handle{}, fmt.Errorf("%s submit: response carried no job id", a.cfg.Name)
	}
	h := Handle{ID: out.ID, Provider: a.cfg.Name}
	if st := out.toStatus(); st.State.Terminal() {
		h.Inline = &st
	}
	return h, nil
}

func (a *PredictionAdapter) Status(ctx context.Context, h Handle) (JobStatus, error) {
	if h.Inline != nil {
		return *h.Inline, nil
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			// Wait gives up early when the next token lies past the deadline.
			// Run out the deadline so callers see a timeout, not a failed check.
			if _, ok := ctx.Deadline(); ok {
				<-ctx.Done()
				return JobStatus{}, ctx.Err()
			}
			return JobStatus{}, err
		}
	}
	resp, err := a.client.R().
		SetContext(ctx).
		Get(a.path(a.cfg.StatusPath, h.ID))
	if err != nil {
		return JobStatus{}, fmt.Errorf("%s status %s: %w", a.cfg.Name, h.ID, err)
	}
	if !resp.IsSuccess() {
		return JobStatus{}, fmt.Errorf("%s status %s: status %d: %s", a.cfg.Name, h.ID, resp.StatusCode(), errorText(resp))
	}
	var out prediction
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return JobStatus{}, fmt.Errorf("%s status %s: decode response: %w", a.cfg.Name, h.ID, err)
	}
	return out.toStatus(), nil
}

func (a *PredictionAdapter) Cancel(ctx context.Context, h Handle) error {
	if a.cfg.CancelPath == "-" || h.Inline != nil {
		return nil
	}
	resp, err := a.client.R().SetContext(ctx).Post(a.path(a.cfg.CancelPath, h.ID))
	if err != nil {
		return err
	}
	if !resp.IsSuccess() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("%s cancel %s: status %d", a.cfg.Name, h.ID, resp.StatusCode())
	}
	return nil
}

func (a *PredictionAdapter) path(tmpl, id string) string {
	return strings.ReplaceAll(tmpl, "{id}", id)
}

func (p prediction) toStatus() JobStatus {
	st := JobStatus{State: mapPredictionState(p.Status)}
	st.OutputURL, st.OutputText = decodeOutput(p.Output)
	if st.State == JobFailed || st.State == JobCanceled {
		st.Reason = decodeReason(p.Error)
		if st.Reason == "" {
			st.Reason = "job " + string(st.State)
		}
	}
	return st
}

func mapPredictionState(s string) JobState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processing", "running", "in_progress", "started":
		return JobRunning
	case "succeeded", "success", "completed", "complete":
		return JobSucceeded
	case "failed", "failure", "error":
		return JobFailed
	case "canceled", "cancelled", "aborted":
		return JobCanceled
	default:
		return JobPending
	}
}

// decodeOutput accepts a string, a list of strings (first wins) or an object
// with url/text fields.
func decodeOutput(raw json.RawMessage) (url, text string) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return splitOutput(s)
	}
	var list []any
	if json.Unmarshal(raw, &list) == nil {
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				return splitOutput(s)
			}
		}
		return "", ""
	}
	var obj struct {
		URL  string `json:"url"`
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.URL, obj.Text
	}
	return "", string(raw)
}

func splitOutput(s string) (url, text string) {
	l := strings.ToLower(s)
	if strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") || strings.HasPrefix(l, "data:") {
		return s, ""
	}
	return "", s
}

func decodeReason(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Detail != "" {
			return obj.Detail
		}
	}
	return string(raw)
}

// errorText renders an error response body for humans; gateway error pages
// arrive as HTML.
func errorText(resp *resty.Response) string {
	body := strings.TrimSpace(resp.String())
	if looksLikeHTML(resp.Header().Get("Content-Type"), body) {
		body = HTMLToText(body)
	} else {
		var obj struct {
			Detail  string `json:"detail"`
			Message string `json:"message"`
			Error   any    `json:"error"`
		}
		if json.Unmarshal(resp.Body(), &obj) == nil {
			switch {
			case obj.Detail != "":
				body = obj.Detail
			case obj.Message != "":
				body = obj.Message
			case obj.Error != nil:
				if s, ok := obj.Error.(string); ok {
					body = s
				}
			}
		}
	}
	body = clip(body, 500)
	if body == "" {
		body = http.StatusText(resp.StatusCode())
	}
	return body
}

// clip cuts s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
