// Package pinecone implements vectorindex.Index against the Pinecone
// serverless API. The index host is resolved once via the control plane
// (describe_index) and cached for the data-plane calls.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mnemos-app/mnemos-backend/internal/platform/ctxutil"
	"github.com/mnemos-app/mnemos-backend/internal/platform/envutil"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
	"github.com/mnemos-app/mnemos-backend/internal/platform/vectorindex"
)

type Config struct {
	APIKey     string
	APIVersion string
	BaseURL    string
	IndexName  string
	Timeout    time.Duration
}

func ResolveConfigFromEnv() Config {
	return Config{
		APIKey:     envutil.String("PINECONE_API_KEY", ""),
		APIVersion: envutil.String("PINECONE_API_VERSION", "2025-01"),
		BaseURL:    envutil.String("PINECONE_BASE_URL", "https://api.pinecone.io"),
		IndexName:  envutil.String("PINECONE_INDEX", "entries"),
		Timeout:    time.Duration(envutil.Int("PINECONE_TIMEOUT_SECONDS", 15)) * time.Second,
	}
}

func ValidateConfig(cfg Config) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("pinecone config: APIKey required")
	}
	if cfg.IndexName == "" {
		return fmt.Errorf("pinecone config: IndexName required")
	}
	return nil
}

type Index struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client

	hostOnce sync.Once
	host     string
	hostErr  error
}

func New(log *logger.Logger, cfg Config) (*Index, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Index{
		log:        log.With("service", "PineconeIndex"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (x *Index) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return vectorindex.OpErr(vectorindex.OpErrInvalidInput, "pinecone.encode", err)
		}
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, url, &buf)
	if err != nil {
		return vectorindex.OpErr(vectorindex.OpErrRequestFailed, "pinecone.request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", x.cfg.APIKey)
	req.Header.Set("X-Pinecone-Api-Version", x.cfg.APIVersion)

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return vectorindex.OpErr(vectorindex.OpErrRequestFailed, "pinecone.do", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return vectorindex.OpErr(vectorindex.OpErrRequestFailed, "pinecone.read", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return vectorindex.OpErr(vectorindex.OpErrBadStatus, "pinecone."+method,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return vectorindex.OpErr(vectorindex.OpErrDecodeFailed, "pinecone.decode", err)
	}
	return nil
}

type describeIndexResponse struct {
	Name   string `json:"name"`
	Host   string `json:"host"`
	Status struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

func (x *Index) resolveHost(ctx context.Context) (string, error) {
	x.hostOnce.Do(func() {
		url := strings.TrimRight(x.cfg.BaseURL, "/") + "/indexes/" + x.cfg.IndexName
		var desc describeIndexResponse
		if err := x.doJSON(ctx, http.MethodGet, url, nil, &desc); err != nil {
			x.hostErr = err
			return
		}
		if desc.Host == "" {
			x.hostErr = vectorindex.OpErr(vectorindex.OpErrNotReady, "pinecone.describeIndex",
				fmt.Errorf("index %s has no host", x.cfg.IndexName))
			return
		}
		if !desc.Status.Ready {
			x.log.Warn("Pinecone index not ready yet", "index", x.cfg.IndexName, "state", desc.Status.State)
		}
		x.host = "https://" + desc.Host
	})
	return x.host, x.hostErr
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (x *Index) Upsert(ctx context.Context, vectors []vectorindex.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	byNamespace := make(map[string][]pineconeVector)
	for _, v := range vectors {
		if v.ID == "" || v.Namespace == "" {
			return vectorindex.OpErr(vectorindex.OpErrInvalidInput, "pinecone.upsert", fmt.Errorf("vector missing id or namespace"))
		}
		byNamespace[v.Namespace] = append(byNamespace[v.Namespace], pineconeVector{
			ID:       v.ID,
			Values:   v.Values,
			Metadata: v.Metadata,
		})
	}

	host, err := x.resolveHost(ctx)
	if err != nil {
		return err
	}
	for ns, vecs := range byNamespace {
		body := map[string]any{
			"vectors":   vecs,
			"namespace": ns,
		}
		if err := x.doJSON(ctx, http.MethodPost, host+"/vectors/upsert", body, nil); err != nil {
			return err
		}
	}
	return nil
}

type queryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

func (x *Index) Query(ctx context.Context, namespace string, values []float32, topK int) ([]vectorindex.Match, error) {
	if namespace == "" {
		return nil, vectorindex.OpErr(vectorindex.OpErrInvalidInput, "pinecone.query", fmt.Errorf("namespace required"))
	}
	if len(values) == 0 {
		return nil, vectorindex.OpErr(vectorindex.OpErrInvalidInput, "pinecone.query", fmt.Errorf("empty query vector"))
	}
	if topK <= 0 {
		topK = 10
	}

	host, err := x.resolveHost(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"vector":          values,
		"topK":            topK,
		"namespace":       namespace,
		"includeMetadata": true,
	}
	var resp queryResponse
	if err := x.doJSON(ctx, http.MethodPost, host+"/query", body, &resp); err != nil {
		return nil, err
	}

	matches := make([]vectorindex.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, vectorindex.Match{
			ID:       m.ID,
			Score:    normalizeCosine(m.Score),
			Metadata: m.Metadata,
		})
	}
	return matches, nil
}

func (x *Index) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if namespace == "" {
		return vectorindex.OpErr(vectorindex.OpErrInvalidInput, "pinecone.delete", fmt.Errorf("namespace required"))
	}

	host, err := x.resolveHost(ctx)
	if err != nil {
		return err
	}
	body := map[string]any{
		"ids":       ids,
		"namespace": namespace,
	}
	return x.doJSON(ctx, http.MethodPost, host+"/vectors/delete", body, nil)
}

func normalizeCosine(s float64) float64 {
	v := (s + 1) / 2
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
