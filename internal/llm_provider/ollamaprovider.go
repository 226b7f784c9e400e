package llm_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

type OllamaProvider struct {
	Endpoint string
	Model    string
	Client   *http.Client
	logger   *zap.Logger
}

func NewOllamaProvider(endpoint, model string, logger *zap.Logger) *OllamaProvider {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "llava"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaProvider{
		Endpoint: endpoint,
		Model:    model,
		Client:   &http.Client{Timeout: 90 * time.Second},
		logger:   logger.Named("ollama"),
	}
}

func (o *OllamaProvider) Generate(ctx context.Context, req Request) (string, error) {
	o.logger.Debug("sending request", zap.String("model", o.Model), zap.Int("chars", len(req.Text)), zap.Int("images", len(req.Images)))

	images := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, img.Base64())
	}
	payload := map[string]any{
		"model":  o.Model,
		"prompt": req.Text,
		"system": strings.Join(req.System, "\n\n"),
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": 0.0,
		},
	}
	if len(images) > 0 {
		payload["images"] = images
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrap(err, "encode ollama request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "build ollama request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(httpReq)
	if err != nil {
		return "", eris.Wrap(err, "ollama unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", eris.Wrapf(core.ErrHTTPStatus, "ollama status %d", resp.StatusCode)
	}

	var result struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
		Error    string `json:"error,omitempty"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", eris.Wrap(err, "decode ollama response")
	}

	if result.Error != "" {
		return "", eris.Errorf("ollama internal error: %s", result.Error)
	}

	trimmed := strings.TrimSpace(result.Response)
	if trimmed == "" {
		o.logger.Warn("empty response", zap.Bool("done", result.Done))
	}

	return trimmed, nil
}
