// Package enrich produces agent-facing product descriptions.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/agent-storefront/internal/model"
	"github.com/fairyhunter13/agent-storefront/internal/obs"
)

// Input is what an enricher knows about a product.
type Input struct {
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	RawText  string   `json:"raw_text"`
}

// FromProduct builds an Input; raw is optional merchant copy.
func FromProduct(p model.Product, raw string) Input {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return Input{Title: p.Title, Category: p.Category, Tags: tags, RawText: raw}
}

// Enricher writes a short description of a product for AI agents.
type Enricher interface {
	Describe(ctx context.Context, in Input) (string, error)
}

// New returns an HTTP enricher when url is set, otherwise the template one.
func New(url string, timeout time.Duration) Enricher {
	if strings.TrimSpace(url) == "" {
		return Template{}
	}
	return &HTTPEnricher{URL: url, Client: &http.Client{Timeout: timeout}, Fallback: Template{}}
}

// HTTPEnricher posts the product to an external describe endpoint.
type HTTPEnricher struct {
	URL      string
	Client   *http.Client
	Fallback Enricher
}

type describeResponse struct {
	Description string `json:"description"`
}

const maxResponseBytes = 1 << 20

func (e *HTTPEnricher) Describe(ctx context.Context, in Input) (string, error) {
	desc, err := e.call(ctx, in)
	if err == nil {
		return desc, nil
	}
	if e.Fallback == nil {
		return "", err
	}
	obs.Logger.Warn("enrich_fallback", "title", in.Title, "error", err)
	return e.Fallback.Describe(ctx, in)
}

func (e *HTTPEnricher) call(ctx context.Context, in Input) (string, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("enrich request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("enrich read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("enrich status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out describeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("enrich decode: %w", err)
	}
	desc := strings.TrimSpace(out.Description)
	if desc == "" {
		return "", fmt.Errorf("enrich: empty description")
	}
	return desc, nil
}

// Template builds deterministic copy from the product fields alone.
type Template struct{}

func (Template) Describe(_ context.Context, in Input) (string, error) {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(in.Title))
	if in.Category != "" {
		fmt.Fprintf(&b, " (%s)", in.Category)
	}
	b.WriteString(".")
	if len(in.Tags) > 0 {
		fmt.Fprintf(&b, " Tagged: %s.", strings.Join(in.Tags, ", "))
	}
	if raw := strings.TrimSpace(in.RawText); raw != "" {
		b.WriteString(" ")
		b.WriteString(raw)
	}
	return b.String(), nil
}
