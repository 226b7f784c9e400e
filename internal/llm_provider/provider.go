package llm_provider

import (
	"context"
	"encoding/base64"
)

// Provider answers one multimodal extraction request with raw model text.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Request struct {
	// System holds the system messages in order.
	System []string
	Text   string
	Images []Image
}

type Image struct {
	// Format is the image subtype, e.g. "jpeg" or "png".
	Format string
	Data   []byte
}

func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

func (i Image) MIMEType() string {
	return "image/" + i.Format
}
