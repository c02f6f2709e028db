// Package oracle talks to an ollama-compatible API for similarity scoring and
// target-phrase generation. Both operations are total: similarity always
// yields a value in [0,1] and target generation always yields the requested
// count, degrading through local fallbacks when the model is unreachable.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// similarityTimeout bounds the whole remote ladder for one rating, so a
	// dead model degrades to the local heuristic well inside a round.
	similarityTimeout = 10 * time.Second
	embedTimeout      = 20 * time.Second
	generateTimeout   = 30 * time.Second
)

type Client struct {
	baseURL    string
	embedModel string
	llmModel   string
	httpClient *http.Client
	simTimeout time.Duration
	log        *zap.Logger
}

func New(baseURL, embedModel, llmModel string, log *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		embedModel: embedModel,
		llmModel:   llmModel,
		httpClient: &http.Client{},
		simTimeout: similarityTimeout,
		log:        log,
	}
}

// Similarity rates how closely a matches b, in [0,1]. It never fails: the
// ladder is exact match, embedding cosine, LLM numeric rating, then a local
// word-overlap heuristic, with 0 as the floor. Both remote strategies share
// one deadline.
func (c *Client) Similarity(ctx context.Context, a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)

	if a == "" || b == "" {
		return 0
	}
	if strings.EqualFold(a, b) {
		return 1
	}

	ctx, cancel := context.WithTimeout(ctx, c.simTimeout)
	defer cancel()

	if sim, err := c.embeddingSimilarity(ctx, a, b); err == nil {
		return clamp01(sim)
	} else {
		c.log.Debug("embedding similarity unavailable", zap.Error(err))
	}

	if sim, err := c.llmSimilarity(ctx, a, b); err == nil {
		return clamp01(sim)
	} else {
		c.log.Debug("llm similarity unavailable", zap.Error(err))
	}

	return wordOverlap(a, b)
}

func (c *Client) embeddingSimilarity(ctx context.Context, a, b string) (float64, error) {
	ea, err := c.embed(ctx, a)
	if err != nil {
		return 0, err
	}
	eb, err := c.embed(ctx, b)
	if err != nil {
		return 0, err
	}
	return cosine(ea, eb), nil
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding  []float64   `json:"embedding"`
	Embeddings [][]float64 `json:"embeddings"`
}

func (c *Client) embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	var resp embedResponse
	if err := c.post(ctx, "/api/embeddings", embedRequest{Model: c.embedModel, Prompt: text}, &resp); err != nil {
		return nil, err
	}

	switch {
	case len(resp.Embedding) > 0:
		return resp.Embedding, nil
	case len(resp.Embeddings) > 0 && len(resp.Embeddings[0]) > 0:
		return resp.Embeddings[0], nil
	}
	return nil, errors.New("no embedding in response")
}

var numberPattern = regexp.MustCompile(`[01](?:\.\d+)?`)

func (c *Client) llmSimilarity(ctx context.Context, a, b string) (float64, error) {
	prompt := fmt.Sprintf(`You are a strict similarity rater.
Compare the semantic similarity between these two short phrases labeled A and B.
Return ONLY a single number between 0.0 and 1.0 (inclusive), using a decimal if needed. Do NOT provide any words or explanation.

A: %q
B: %q`, a, b)

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return 0, err
	}

	m := numberPattern.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("no numeric rating in %q", text)
	}
	val, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, err
	}
	return val, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	var resp generateResponse
	if err := c.post(ctx, "/api/generate", generateRequest{Model: c.llmModel, Prompt: prompt}, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	v := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// wordOverlap is the last-resort heuristic: the Jaccard index of the two
// lowercased token sets.
func wordOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	shared := 0
	for tok := range setA {
		if setB[tok] {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return clamp01(float64(shared) / float64(union))
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = true
	}
	return set
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
