package llm_provider

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-2.5-flash"

type GeminiProvider struct {
	Client *genai.Client
	Model  string
	logger *zap.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, eris.Wrap(err, "create gemini client")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GeminiProvider{Client: client, Model: model, logger: logger.Named("gemini")}, nil
}

func (g *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	model := g.Client.GenerativeModel(g.Model)
	model.ResponseMIMEType = "application/json"
	if len(req.System) > 0 {
		model.SystemInstruction = genai.NewUserContent(genai.Text(strings.Join(req.System, "\n\n")))
	}

	parts := []genai.Part{genai.Text(req.Text)}
	for _, img := range req.Images {
		parts = append(parts, genai.ImageData(img.Format, img.Data))
	}

	g.logger.Debug("generating", zap.String("model", g.Model), zap.Int("images", len(req.Images)), zap.Int("chars", len(req.Text)))
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", eris.Wrap(err, "gemini generate")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", eris.New("empty response")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	return text, nil
}

func (g *GeminiProvider) Close() error {
	return g.Client.Close()
}
