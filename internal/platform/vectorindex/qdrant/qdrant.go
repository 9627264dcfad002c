// Package qdrant implements vectorindex.Index against the Qdrant HTTP API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mnemos-app/mnemos-backend/internal/platform/ctxutil"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
	"github.com/mnemos-app/mnemos-backend/internal/platform/vectorindex"
)

// pointNamespace seeds deterministic point IDs so the same (namespace, id)
// pair always maps to the same Qdrant point.
var pointNamespace = uuid.MustParse("8f1d6f0a-92b1-4a5e-9c63-2e8a54f7d1c4")

type Index struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client

	readyOnce sync.Once
	readyErr  error
}

func New(log *logger.Logger, cfg Config) (*Index, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Index{
		log:        log.With("service", "QdrantIndex"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

func (x *Index) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return vectorindex.OpErr(vectorindex.OpErrInvalidInput, "qdrant.encode", err)
		}
	}

	url := strings.TrimRight(x.cfg.URL, "/") + path
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, url, &buf)
	if err != nil {
		return vectorindex.OpErr(vectorindex.OpErrRequestFailed, "qdrant.request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if x.cfg.APIKey != "" {
		req.Header.Set("api-key", x.cfg.APIKey)
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return vectorindex.OpErr(vectorindex.OpErrRequestFailed, "qdrant.do", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return vectorindex.OpErr(vectorindex.OpErrRequestFailed, "qdrant.read", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return vectorindex.OpErr(vectorindex.OpErrBadStatus, "qdrant."+method+path,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return vectorindex.OpErr(vectorindex.OpErrDecodeFailed, "qdrant.envelope", err)
	}
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return vectorindex.OpErr(vectorindex.OpErrDecodeFailed, "qdrant.result", err)
		}
	}
	return nil
}

// verifyReady creates the collection on first use if it does not exist.
func (x *Index) verifyReady(ctx context.Context) error {
	x.readyOnce.Do(func() {
		path := "/collections/" + x.cfg.Collection
		err := x.doJSON(ctx, http.MethodGet, path, nil, &struct{}{})
		if err == nil {
			return
		}

		if !isNotFound(err) {
			x.readyErr = err
			return
		}

		createBody := map[string]any{
			"vectors": map[string]any{
				"size":     x.cfg.Dimension,
				"distance": "Cosine",
			},
		}
		if createErr := x.doJSON(ctx, http.MethodPut, path, createBody, nil); createErr != nil {
			x.readyErr = vectorindex.OpErr(vectorindex.OpErrNotReady, "qdrant.createCollection", createErr)
			return
		}
		x.log.Info("Created qdrant collection", "collection", x.cfg.Collection, "dimension", x.cfg.Dimension)
	})
	return x.readyErr
}

func isNotFound(err error) bool {
	if opErr, ok := err.(*vectorindex.OperationError); ok {
		return opErr.Code == vectorindex.OpErrBadStatus && strings.Contains(opErr.Error(), "status 404")
	}
	return false
}

// PointID derives the stable Qdrant point UUID for a vector.
func PointID(namespace, id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(namespace+"/"+id)).String()
}

type upsertPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (x *Index) Upsert(ctx context.Context, vectors []vectorindex.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	if err := x.verifyReady(ctx); err != nil {
		return err
	}

	points := make([]upsertPoint, 0, len(vectors))
	for _, v := range vectors {
		if v.ID == "" || v.Namespace == "" {
			return vectorindex.OpErr(vectorindex.OpErrInvalidInput, "qdrant.upsert", fmt.Errorf("vector missing id or namespace"))
		}
		payload := map[string]any{
			"namespace": v.Namespace,
			"entry_id":  v.ID,
		}
		for k, val := range v.Metadata {
			payload[k] = val
		}
		points = append(points, upsertPoint{
			ID:      PointID(v.Namespace, v.ID),
			Vector:  v.Values,
			Payload: payload,
		})
	}

	path := "/collections/" + x.cfg.Collection + "/points?wait=true"
	return x.doJSON(ctx, http.MethodPut, path, map[string]any{"points": points}, nil)
}

type searchHit struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (x *Index) Query(ctx context.Context, namespace string, values []float32, topK int) ([]vectorindex.Match, error) {
	if namespace == "" {
		return nil, vectorindex.OpErr(vectorindex.OpErrInvalidInput, "qdrant.query", fmt.Errorf("namespace required"))
	}
	if len(values) == 0 {
		return nil, vectorindex.OpErr(vectorindex.OpErrInvalidInput, "qdrant.query", fmt.Errorf("empty query vector"))
	}
	if topK <= 0 {
		topK = 10
	}
	if err := x.verifyReady(ctx); err != nil {
		return nil, err
	}

	body := map[string]any{
		"vector": values,
		"limit":  topK,
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "namespace", "match": map[string]any{"value": namespace}},
			},
		},
		"with_payload": true,
	}

	var hits []searchHit
	path := "/collections/" + x.cfg.Collection + "/points/search"
	if err := x.doJSON(ctx, http.MethodPost, path, body, &hits); err != nil {
		return nil, err
	}

	matches := make([]vectorindex.Match, 0, len(hits))
	for _, h := range hits {
		id := h.ID
		if raw, ok := h.Payload["entry_id"].(string); ok && raw != "" {
			id = raw
		}
		matches = append(matches, vectorindex.Match{
			ID:       id,
			Score:    normalizeCosine(h.Score),
			Metadata: h.Payload,
		})
	}
	return matches, nil
}

func (x *Index) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if namespace == "" {
		return vectorindex.OpErr(vectorindex.OpErrInvalidInput, "qdrant.delete", fmt.Errorf("namespace required"))
	}
	if err := x.verifyReady(ctx); err != nil {
		return err
	}

	pointIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, PointID(namespace, id))
	}

	path := "/collections/" + x.cfg.Collection + "/points/delete?wait=true"
	return x.doJSON(ctx, http.MethodPost, path, map[string]any{"points": pointIDs}, nil)
}

// Qdrant cosine scores land in [-1,1]; callers expect [0,1].
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
