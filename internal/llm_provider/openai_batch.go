package llm_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	DefaultBatchBaseURL = "https://api.openai.com/v1"
	ChatCompletionsPath = "/v1/chat/completions"
	CompletionWindow    = "24h"

	BatchCompleted = "completed"
	BatchFailed    = "failed"
	BatchExpired   = "expired"
	BatchCancelled = "cancelled"

	quotaCode = "token_limit_exceeded"
)

// Batch is the job object returned by the batch endpoints.
type Batch struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	InputFileID   string `json:"input_file_id"`
	OutputFileID  string `json:"output_file_id"`
	ErrorFileID   string `json:"error_file_id"`
	RequestCounts struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"request_counts"`
	Errors *struct {
		Data []BatchError `json:"data"`
	} `json:"errors,omitempty"`
}

type BatchError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Failure summarizes why a failed batch failed. It matches
// core.ErrQuotaExceeded when the provider reported the token quota.
func (b *Batch) Failure() error {
	var msgs []string
	quota := false
	if b.Errors != nil {
		for _, e := range b.Errors.Data {
			msgs = append(msgs, e.Code+": "+e.Message)
			if e.Code == quotaCode {
				quota = true
			}
		}
	}
	sentinel := core.ErrBatchFailed
	if quota {
		sentinel = core.ErrQuotaExceeded
	}
	if len(msgs) == 0 {
		return eris.Wrapf(sentinel, "batch %s %s", b.ID, b.Status)
	}
	return eris.Wrapf(sentinel, "batch %s %s: %s", b.ID, b.Status, strings.Join(msgs, "; "))
}

// APIError is a non-2xx answer of the batch API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("batch api status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("batch api status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case core.ErrQuotaExceeded:
		return e.Code == quotaCode || strings.Contains(e.Message, quotaCode)
	case core.ErrHTTPStatus:
		return true
	}
	return false
}

// IsRetryable is the retry predicate for batch API calls: throttling and
// server errors are retried, other API errors and quota errors are not.
func IsRetryable(err error) (bool, time.Duration) {
	if errors.Is(err, core.ErrQuotaExceeded) {
		return false, 0
	}
	var re *core.RetryableError
	if errors.As(err, &re) {
		return true, re.RetryAfter
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false, 0
	}
	return core.IsRetryable(err)
}

// BatchClient talks to an OpenAI compatible files and batches API.
type BatchClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	logger  *zap.Logger
}

func NewBatchClient(baseURL, apiKey string, logger *zap.Logger) *BatchClient {
	if baseURL == "" {
		baseURL = DefaultBatchBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  logger.Named("batch_api"),
	}
}

// UploadFile uploads a JSONL request file with purpose "batch" and returns
// its file id.
func (c *BatchClient) UploadFile(ctx context.Context, name string, content io.Reader) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("purpose", "batch"); err != nil {
		return "", eris.Wrap(err, "write purpose field")
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", eris.Wrap(err, "create file part")
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", eris.Wrap(err, "copy request file")
	}
	if err := w.Close(); err != nil {
		return "", eris.Wrap(err, "close multipart body")
	}

	var file struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/files", w.FormDataContentType(), &body, &file); err != nil {
		return "", eris.Wrap(err, "upload batch file")
	}
	c.logger.Info("batch file uploaded", zap.String("file_id", file.ID), zap.Int("bytes", body.Len()))
	return file.ID, nil
}

func (c *BatchClient) CreateBatch(ctx context.Context, inputFileID string, metadata map[string]string) (*Batch, error) {
	payload, err := json.Marshal(map[string]any{
		"input_file_id":     inputFileID,
		"endpoint":          ChatCompletionsPath,
		"completion_window": CompletionWindow,
		"metadata":          metadata,
	})
	if err != nil {
		return nil, eris.Wrap(err, "encode batch request")
	}

	var b Batch
	if err := c.do(ctx, http.MethodPost, "/batches", "application/json", bytes.NewReader(payload), &b); err != nil {
		return nil, eris.Wrap(err, "create batch")
	}
	c.logger.Info("batch created", zap.String("batch_id", b.ID), zap.String("status", b.Status))
	return &b, nil
}

func (c *BatchClient) GetBatch(ctx context.Context, id string) (*Batch, error) {
	var b Batch
	if err := c.do(ctx, http.MethodGet, "/batches/"+id, "", nil, &b); err != nil {
		return nil, eris.Wrapf(err, "get batch %s", id)
	}
	return &b, nil
}

func (c *BatchClient) CancelBatch(ctx context.Context, id string) (*Batch, error) {
	var b Batch
	if err := c.do(ctx, http.MethodPost, "/batches/"+id+"/cancel", "", nil, &b); err != nil {
		return nil, eris.Wrapf(err, "cancel batch %s", id)
	}
	return &b, nil
}

// FileContent downloads the raw bytes of a file, typically a batch output.
func (c *BatchClient) FileContent(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, "/files/"+fileID+"/content", "", nil)
	if err != nil {
		return nil, eris.Wrapf(err, "download file %s", fileID)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "read file %s", fileID)
	}
	return data, nil
}

func (c *BatchClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	resp, err := c.send(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

func (c *BatchClient) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &core.RetryableError{Err: apiErr, RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	}
	return nil, apiErr
}

func retryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
