package enrich

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/oranjParker/Pawmap/internal/content"
	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/imaging"
	"github.com/oranjParker/Pawmap/internal/llm_provider"
	"github.com/oranjParker/Pawmap/internal/place"
	"github.com/rotisserie/eris"
)

const (
	KeyCategories = "categories"
	KeyServices   = "services"
	KeyMenus      = "menus"

	ContentName = "content.json"
)

// contentKeys are the record fields the model gets to see, in this order.
var contentKeys = []string{
	place.KeyName,
	place.KeyBusinessHours,
	place.KeyMenus,
	place.KeyDescription,
	place.KeyKeywords,
	place.KeyConveniences,
	place.KeyParking,
	place.KeyValetParking,
	content.KeyPageContent,
}

type RequestLine struct {
	CustomID string   `json:"custom_id"`
	Method   string   `json:"method"`
	URL      string   `json:"url"`
	Body     ChatBody `json:"body"`
}

type ChatBody struct {
	Model          string         `json:"model"`
	MaxTokens      int            `json:"max_tokens"`
	Messages       []Message      `json:"messages"`
	ResponseFormat ResponseFormat `json:"response_format"`
}

// Message content is a string for system messages and a list of parts for
// the user message.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type Part struct {
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Text     string            `json:"text,omitempty"`
	ImageURL *ImageURL         `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type Builder struct {
	Model     string
	MaxTokens int
	System    []string
}

// Content renders the fields of r the model reads as indented JSON. Missing
// fields are sent as null.
func Content(r core.Record) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, k := range contentKeys {
		if i > 0 {
			buf.WriteString(",")
		}
		key, _ := json.Marshal(k)
		val, err := marshal(r[k])
		if err != nil {
			return "", eris.Wrapf(err, "encode %s", k)
		}
		buf.WriteString("\n")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(val)
	}
	buf.WriteString("\n}")

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "    "); err != nil {
		return "", eris.Wrap(err, "indent content")
	}
	return out.String(), nil
}

// BuildRequest assembles the batch line of one place: the system messages,
// then a user message with content.json and the images as data URLs.
func (b *Builder) BuildRequest(r core.Record, images []imaging.Image) (RequestLine, error) {
	text, err := Content(r)
	if err != nil {
		return RequestLine{}, err
	}

	messages := make([]Message, 0, len(b.System)+1)
	for _, s := range b.System {
		messages = append(messages, Message{Role: "system", Content: s})
	}
	parts := []Part{{Type: "text", Metadata: map[string]string{"name": ContentName}, Text: text}}
	for _, img := range images {
		parts = append(parts, Part{Type: "image_url", ImageURL: &ImageURL{URL: img.DataURL()}})
	}
	messages = append(messages, Message{Role: "user", Content: parts})

	return RequestLine{
		CustomID: r.ID(),
		Method:   "POST",
		URL:      llm_provider.ChatCompletionsPath,
		Body: ChatBody{
			Model:          b.Model,
			MaxTokens:      b.MaxTokens,
			Messages:       messages,
			ResponseFormat: ResponseFormat{Type: "json_object"},
		},
	}, nil
}

// ProviderRequest is the direct mode form of BuildRequest.
func (b *Builder) ProviderRequest(r core.Record, images []imaging.Image) (llm_provider.Request, error) {
	text, err := Content(r)
	if err != nil {
		return llm_provider.Request{}, err
	}
	req := llm_provider.Request{System: b.System, Text: text}
	for _, img := range images {
		req.Images = append(req.Images, llm_provider.Image{Format: img.Format, Data: img.Data})
	}
	return req, nil
}

// WriteJSONL writes one request per line without HTML escaping.
func WriteJSONL(w io.Writer, lines []RequestLine) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			return eris.Wrapf(err, "encode request %s", l.CustomID)
		}
	}
	return nil
}

// StripFences removes markdown code fences around a JSON answer.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```json\n", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// DecodeAnswer maps one model answer onto the result record of place id.
func DecodeAnswer(id, answer string) (core.Record, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(StripFences(answer)), &parsed); err != nil {
		return nil, eris.Wrapf(err, "decode answer for %s", id)
	}
	// keys the model left out stay absent so they do not clobber scraped fields
	r := core.Record{core.KeyID: id}
	for _, k := range []string{KeyCategories, KeyServices, KeyMenus} {
		if v, ok := parsed[k]; ok {
			r[k] = v
		}
	}
	return r, nil
}

type outputLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeOutput parses a batch output file. Lines that cannot be mapped to a
// result are returned as errors next to the decoded records.
func DecodeOutput(data []byte) ([]core.Record, []error) {
	var out []core.Record
	var errs []error

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ol outputLine
		if err := json.Unmarshal(line, &ol); err != nil {
			errs = append(errs, eris.Wrap(err, "decode output line"))
			continue
		}
		if ol.Error != nil {
			errs = append(errs, eris.Errorf("request %s failed: %s %s", ol.CustomID, ol.Error.Code, ol.Error.Message))
			continue
		}
		if ol.Response == nil || len(ol.Response.Body.Choices) == 0 {
			errs = append(errs, eris.Errorf("request %s has no choices", ol.CustomID))
			continue
		}
		r, err := DecodeAnswer(ol.CustomID, ol.Response.Body.Choices[0].Message.Content)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, eris.Wrap(err, "scan output"))
	}
	return out, errs
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
