package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// streamDisabledSignal is the one error substring the index emits when stream
// updates are not enabled. It is matched in exactly one place (parseAPIError)
// and converted to the typed ErrStreamUnsupported sentinel.
const streamDisabledSignal = "StreamUpdate is not enabled"

// ObjectStore stages batch update files. Put stores the bytes under the given
// key and returns an addressable URI.
type ObjectStore interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) (string, error)
}

// Config holds connection settings for the managed vector index
type Config struct {
	ProjectID       string
	Location        string
	IndexID         string
	EndpointID      string
	DeployedIndexID string
	// EndpointHost overrides the query host, e.g. the endpoint's public
	// domain name. Defaults to the regional aiplatform host.
	EndpointHost string
	// AccessToken bypasses default-credential lookup when set (used by tests
	// and short-lived environments)
	AccessToken string
	Timeout     time.Duration
}

// ConfigFromEnv reads index settings from the environment
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		ProjectID:       os.Getenv("GOOGLE_CLOUD_PROJECT"),
		Location:        os.Getenv("VECTOR_SEARCH_LOCATION"),
		IndexID:         os.Getenv("VECTOR_SEARCH_INDEX_ID"),
		EndpointID:      os.Getenv("VECTOR_SEARCH_ENDPOINT_ID"),
		DeployedIndexID: os.Getenv("VECTOR_SEARCH_DEPLOYED_INDEX_ID"),
		EndpointHost:    os.Getenv("VECTOR_SEARCH_ENDPOINT_HOST"),
		AccessToken:     os.Getenv("VECTOR_SEARCH_ACCESS_TOKEN"),
	}
	if cfg.Location == "" {
		cfg.Location = "asia-southeast1"
	}

	if cfg.ProjectID == "" {
		return cfg, errors.New("GOOGLE_CLOUD_PROJECT environment variable not set")
	}
	if cfg.IndexID == "" {
		return cfg, errors.New("VECTOR_SEARCH_INDEX_ID environment variable not set")
	}
	if cfg.EndpointID == "" {
		return cfg, errors.New("VECTOR_SEARCH_ENDPOINT_ID environment variable not set")
	}
	if cfg.DeployedIndexID == "" {
		return cfg, errors.New("VECTOR_SEARCH_DEPLOYED_INDEX_ID environment variable not set")
	}

	return cfg, nil
}

// VertexIndex is a REST client for a Vertex-style managed ANN index. It
// implements Index with the stream-first, batch-staging-fallback protocol.
type VertexIndex struct {
	cfg     Config
	client  *http.Client
	tokens  oauth2.TokenSource
	staging ObjectStore
	// baseURL overrides the computed API URLs (tests point it at a local
	// server)
	baseURL string
}

// NewVertexIndex creates an index client. The staging store receives batch
// files when the index rejects stream updates.
func NewVertexIndex(ctx context.Context, cfg Config, staging ObjectStore) (*VertexIndex, error) {
	if staging == nil {
		return nil, errors.New("staging object store is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	idx := &VertexIndex{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		staging: staging,
	}

	if cfg.AccessToken != "" {
		idx.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	} else {
		ts, err := google.DefaultTokenSource(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return nil, fmt.Errorf("failed to resolve Google credentials: %w", err)
		}
		idx.tokens = ts
	}

	return idx, nil
}

// API request/response shapes (REST JSON, camelCase)

type apiRestrict struct {
	Namespace string   `json:"namespace"`
	AllowList []string `json:"allowList"`
}

type apiDatapoint struct {
	DatapointID   string        `json:"datapointId"`
	FeatureVector []float64     `json:"featureVector"`
	Restricts     []apiRestrict `json:"restricts,omitempty"`
}

type upsertRequest struct {
	Datapoints []apiDatapoint `json:"datapoints"`
}

type removeRequest struct {
	DatapointIDs []string `json:"datapointIds"`
}

type findNeighborsQuery struct {
	Datapoint     apiDatapoint `json:"datapoint"`
	NeighborCount int          `json:"neighborCount"`
}

type findNeighborsRequest struct {
	DeployedIndexID     string               `json:"deployedIndexId"`
	Queries             []findNeighborsQuery `json:"queries"`
	ReturnFullDatapoint bool                 `json:"returnFullDatapoint"`
}

type findNeighborsResponse struct {
	NearestNeighbors []struct {
		Neighbors []struct {
			Datapoint struct {
				DatapointID string `json:"datapointId"`
			} `json:"datapoint"`
			Distance float64 `json:"distance"`
		} `json:"neighbors"`
	} `json:"nearestNeighbors"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// stagedDatapoint is one line of a staged batch file. The bulk importer
// expects snake_case keys.
type stagedDatapoint struct {
	DatapointID   string     `json:"datapoint_id"`
	FeatureVector []float64  `json:"feature_vector"`
	Restricts     []Restrict `json:"restricts,omitempty"`
}

// Add submits entries to the index. It attempts a synchronous stream upsert
// first; if the index reports stream updates disabled it stages a batch file
// through the object store and returns a staged outcome. Any other failure
// propagates unchanged so real faults are not masked as staging work.
func (v *VertexIndex) Add(ctx context.Context, entries []Entry) (*AddOutcome, error) {
	if err := validateEntries(entries); err != nil {
		return nil, err
	}

	err := v.streamUpsert(ctx, entries)
	if err == nil {
		log.Printf("Added %d vectors via stream update", len(entries))
		return &AddOutcome{Count: len(entries)}, nil
	}
	if !errors.Is(err, ErrStreamUnsupported) {
		return nil, err
	}

	log.Printf("Stream update not available, staging batch file for %d vectors", len(entries))
	uri, err := v.stageBatch(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("batch staging failed: %w", err)
	}

	log.Printf("Staged batch file at %s; entries become queryable after bulk import", uri)
	return &AddOutcome{Count: len(entries), Staged: true, StagedURI: uri}, nil
}

func (v *VertexIndex) streamUpsert(ctx context.Context, entries []Entry) error {
	req := upsertRequest{Datapoints: make([]apiDatapoint, 0, len(entries))}
	for _, entry := range entries {
		req.Datapoints = append(req.Datapoints, apiDatapoint{
			DatapointID:   entry.ID,
			FeatureVector: entry.Embedding,
			Restricts:     toAPIRestricts(MetadataToRestricts(entry.Metadata)),
		})
	}

	return v.doJSON(ctx, v.indexURL("upsertDatapoints"), req, nil)
}

// stageBatch serializes entries as newline-delimited JSON and uploads the
// file under a batch-size-derived key, mirroring the format the out-of-band
// bulk importer consumes
func (v *VertexIndex) stageBatch(ctx context.Context, entries []Entry) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range entries {
		rec := stagedDatapoint{
			DatapointID:   entry.ID,
			FeatureVector: entry.Embedding,
			Restricts:     MetadataToRestricts(entry.Metadata),
		}
		if err := enc.Encode(rec); err != nil {
			return "", fmt.Errorf("failed to encode datapoint %s: %w", entry.ID, err)
		}
	}

	key := fmt.Sprintf("vector_updates/batch_%d.json", len(entries))
	return v.staging.Put(ctx, key, &buf, "application/json")
}

// Query returns the nearest neighbors for a vector with optional metadata
// filters. The vector is validated before any network call; transport and
// parse failures degrade to an empty result list since query is a best-effort
// read path.
func (v *VertexIndex) Query(ctx context.Context, vector []float64, numNeighbors int, filters map[string]any) ([]Neighbor, error) {
	if len(vector) == 0 {
		return nil, errors.New("empty query vector")
	}
	for i, val := range vector {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("invalid query vector value at index %d", i)
		}
	}
	if numNeighbors <= 0 {
		numNeighbors = 10
	}

	req := findNeighborsRequest{
		DeployedIndexID: v.cfg.DeployedIndexID,
		Queries: []findNeighborsQuery{{
			Datapoint: apiDatapoint{
				DatapointID:   "__query__",
				FeatureVector: vector,
				Restricts:     toAPIRestricts(MetadataToRestricts(filters)),
			},
			NeighborCount: numNeighbors,
		}},
	}

	var resp findNeighborsResponse
	if err := v.doJSON(ctx, v.endpointURL("findNeighbors"), req, &resp); err != nil {
		log.Printf("Vector search failed: %v", err)
		return nil, nil
	}

	var results []Neighbor
	if len(resp.NearestNeighbors) > 0 {
		for _, n := range resp.NearestNeighbors[0].Neighbors {
			if n.Datapoint.DatapointID == "" {
				continue
			}
			results = append(results, Neighbor{
				ID:              n.Datapoint.DatapointID,
				Distance:        n.Distance,
				SimilarityScore: ClampSimilarity(n.Distance),
			})
		}
	}

	return results, nil
}

// Delete removes datapoints by ID. IDs are validated all-or-nothing before
// any network call. ErrStreamUnsupported is returned when the index cannot
// delete synchronously, so callers can decide whether to retry via a bulk
// path instead of a silent no-op.
func (v *VertexIndex) Delete(ctx context.Context, ids []string) error {
	if err := validateIDs(ids); err != nil {
		return err
	}

	if err := v.doJSON(ctx, v.indexURL("removeDatapoints"), removeRequest{DatapointIDs: ids}, nil); err != nil {
		return err
	}

	log.Printf("Deleted %d vectors from index %s", len(ids), v.cfg.IndexID)
	return nil
}

func (v *VertexIndex) indexURL(method string) string {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/indexes/%s:%s",
		v.apiBase(), v.cfg.ProjectID, v.cfg.Location, v.cfg.IndexID, method)
}

func (v *VertexIndex) endpointURL(method string) string {
	base := v.apiBase()
	if v.baseURL == "" && v.cfg.EndpointHost != "" {
		base = "https://" + v.cfg.EndpointHost
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/indexEndpoints/%s:%s",
		base, v.cfg.ProjectID, v.cfg.Location, v.cfg.EndpointID, method)
}

func (v *VertexIndex) apiBase() string {
	if v.baseURL != "" {
		return v.baseURL
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com", v.cfg.Location)
}

func (v *VertexIndex) doJSON(ctx context.Context, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := v.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}
	token.SetAuthHeader(req)

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("index request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return parseAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode index response: %w", err)
		}
	}

	return nil
}

// parseAPIError converts an error response into a Go error. This is the only
// place the stream-disabled signal string is inspected; everywhere else works
// with the typed sentinel.
func parseAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var apiErr apiError
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	if strings.Contains(message, streamDisabledSignal) {
		return fmt.Errorf("%w: %s", ErrStreamUnsupported, message)
	}

	return fmt.Errorf("index returned %s: %s", resp.Status, message)
}

func toAPIRestricts(restricts []Restrict) []apiRestrict {
	if len(restricts) == 0 {
		return nil
	}
	out := make([]apiRestrict, 0, len(restricts))
	for _, r := range restricts {
		out = append(out, apiRestrict{Namespace: r.Namespace, AllowList: r.AllowList})
	}
	return out
}
