package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/oauth2"
)

// fakeObjectStore records staged batch files in memory
type fakeObjectStore struct {
	puts   map[string][]byte
	failed bool
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{puts: make(map[string][]byte)}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, data io.Reader, _ string) (string, error) {
	if f.failed {
		return "", errors.New("bucket unavailable")
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.puts[key] = b
	return "gs://test-bucket/" + key, nil
}

func newTestIndex(t *testing.T, handler http.Handler, store ObjectStore) (*VertexIndex, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	idx := &VertexIndex{
		cfg: Config{
			ProjectID:       "test-project",
			Location:        "asia-southeast1",
			IndexID:         "idx-1",
			EndpointID:      "ep-1",
			DeployedIndexID: "dep-1",
		},
		client:  srv.Client(),
		tokens:  oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		staging: store,
		baseURL: srv.URL,
	}
	return idx, srv
}

func streamDisabledHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"error":{"code":400,"message":"StreamUpdate is not enabled on this index","status":"FAILED_PRECONDITION"}}`)
	})
}

func testEntries() []Entry {
	return []Entry{
		{
			ID:        "doc-1_chunk_0000",
			Embedding: []float64{0.1, 0.2, 0.3},
			Metadata:  map[string]any{"legal_area": "contract", "author": "Tan"},
		},
		{
			ID:        "doc-1_chunk_0001",
			Embedding: []float64{0.4, 0.5, 0.6},
			Metadata:  map[string]any{"legal_area": "contract", "author": "Tan"},
		},
	}
}

func TestAddStreamSuccess(t *testing.T) {
	var gotPath string
	var gotBody upsertRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{}`))
	})
	store := newFakeObjectStore()
	idx, _ := newTestIndex(t, handler, store)

	outcome, err := idx.Add(context.Background(), testEntries())
	require.NoError(t, err)

	assert.False(t, outcome.Staged)
	assert.Equal(t, 2, outcome.Count)
	assert.Empty(t, store.puts, "stream success must not stage anything")

	assert.Contains(t, gotPath, "indexes/idx-1:upsertDatapoints")
	require.Len(t, gotBody.Datapoints, 2)
	assert.Equal(t, "doc-1_chunk_0000", gotBody.Datapoints[0].DatapointID)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, gotBody.Datapoints[0].FeatureVector)
}

func TestAddFallsBackToStagingOnStreamDisabled(t *testing.T) {
	store := newFakeObjectStore()
	idx, _ := newTestIndex(t, streamDisabledHandler(), store)

	outcome, err := idx.Add(context.Background(), testEntries())
	require.NoError(t, err, "stream-disabled must stage, not fail")

	assert.True(t, outcome.Staged)
	assert.Equal(t, "gs://test-bucket/vector_updates/batch_2.json", outcome.StagedURI)

	raw, ok := store.puts["vector_updates/batch_2.json"]
	require.True(t, ok)

	// One JSON object per line with snake_case keys and restrict allow lists
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	var rec stagedDatapoint
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "doc-1_chunk_0000", rec.DatapointID)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, rec.FeatureVector)
	require.Len(t, rec.Restricts, 2)
	assert.Equal(t, Restrict{Namespace: "author", AllowList: []string{"Tan"}}, rec.Restricts[0])
	assert.Equal(t, Restrict{Namespace: "legal_area", AllowList: []string{"contract"}}, rec.Restricts[1])
}

func TestAddPropagatesOtherFailures(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, `{"error":{"code":500,"message":"index backend unavailable","status":"INTERNAL"}}`)
	})
	store := newFakeObjectStore()
	idx, _ := newTestIndex(t, handler, store)

	_, err := idx.Add(context.Background(), testEntries())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStreamUnsupported)
	assert.Contains(t, err.Error(), "index backend unavailable")
	assert.Empty(t, store.puts, "non-fallback failures must not stage")
}

func TestAddStagingFailurePropagates(t *testing.T) {
	store := newFakeObjectStore()
	store.failed = true
	idx, _ := newTestIndex(t, streamDisabledHandler(), store)

	_, err := idx.Add(context.Background(), testEntries())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch staging failed")
}

func TestAddValidatesBeforeNetwork(t *testing.T) {
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{}`))
	})
	idx, _ := newTestIndex(t, handler, newFakeObjectStore())

	_, err := idx.Add(context.Background(), nil)
	assert.Error(t, err)

	_, err = idx.Add(context.Background(), []Entry{{ID: "", Embedding: []float64{1}}})
	assert.Error(t, err)

	// Mismatched dimensionality is a hard error, never silently truncated
	_, err = idx.Add(context.Background(), []Entry{
		{ID: "a", Embedding: []float64{1, 2}},
		{ID: "b", Embedding: []float64{1, 2, 3}},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")

	assert.Equal(t, 0, calls)
}

func TestQueryReturnsNeighborsWithClampedSimilarity(t *testing.T) {
	var gotBody findNeighborsRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprintf(w, `{"nearestNeighbors":[{"neighbors":[
			{"datapoint":{"datapointId":"doc-1_chunk_0003"},"distance":0.25},
			{"datapoint":{"datapointId":"doc-2_chunk_0001"},"distance":1.4}
		]}]}`)
	})
	idx, _ := newTestIndex(t, handler, newFakeObjectStore())

	neighbors, err := idx.Query(context.Background(), []float64{0.1, 0.2}, 5,
		map[string]any{"legal_area": []string{"contract", "tort"}})
	require.NoError(t, err)
	require.Len(t, neighbors, 2)

	assert.Equal(t, "doc-1_chunk_0003", neighbors[0].ID)
	assert.InDelta(t, 0.75, neighbors[0].SimilarityScore, 1e-9)
	// Distance beyond 1.0 clamps to zero, never negative
	assert.Equal(t, 0.0, neighbors[1].SimilarityScore)

	assert.Equal(t, "dep-1", gotBody.DeployedIndexID)
	require.Len(t, gotBody.Queries, 1)
	assert.Equal(t, 5, gotBody.Queries[0].NeighborCount)
	require.Len(t, gotBody.Queries[0].Datapoint.Restricts, 1)
	assert.Equal(t, []string{"contract", "tort"}, gotBody.Queries[0].Datapoint.Restricts[0].AllowList)
}

func TestQueryValidatesVector(t *testing.T) {
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{}`))
	})
	idx, _ := newTestIndex(t, handler, newFakeObjectStore())

	_, err := idx.Query(context.Background(), nil, 5, nil)
	assert.Error(t, err)

	bad := []float64{0.1, nan()}
	_, err = idx.Query(context.Background(), bad, 5, nil)
	assert.Error(t, err)

	assert.Equal(t, 0, calls)
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestQueryDegradesToEmptyOnTransportFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	idx, _ := newTestIndex(t, handler, newFakeObjectStore())

	neighbors, err := idx.Query(context.Background(), []float64{0.1, 0.2}, 5, nil)
	assert.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestQueryDegradesToEmptyOnParseFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	})
	idx, _ := newTestIndex(t, handler, newFakeObjectStore())

	neighbors, err := idx.Query(context.Background(), []float64{0.1, 0.2}, 5, nil)
	assert.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestDeleteSuccess(t *testing.T) {
	var gotBody removeRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "indexes/idx-1:removeDatapoints")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{}`))
	})
	idx, _ := newTestIndex(t, handler, newFakeObjectStore())

	err := idx.Delete(context.Background(), []string{"doc-1_chunk_0000", "doc-1_chunk_0001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1_chunk_0000", "doc-1_chunk_0001"}, gotBody.DatapointIDs)
}

func TestDeleteReturnsTypedErrorWhenStreamDisabled(t *testing.T) {
	idx, _ := newTestIndex(t, streamDisabledHandler(), newFakeObjectStore())

	err := idx.Delete(context.Background(), []string{"doc-1_chunk_0000"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStreamUnsupported)
}

func TestDeleteValidatesIDs(t *testing.T) {
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{}`))
	})
	idx, _ := newTestIndex(t, handler, newFakeObjectStore())

	assert.Error(t, idx.Delete(context.Background(), nil))
	assert.Error(t, idx.Delete(context.Background(), []string{"ok", ""}))
	assert.Equal(t, 0, calls, "validation is all-or-nothing before any network call")
}

func TestMetadataToRestricts(t *testing.T) {
	restricts := MetadataToRestricts(map[string]any{
		"document_id": "doc-1",
		"legal_area":  []string{"contract", ""},
		"empty":       "",
		"nil":         nil,
		"chunk_size":  1000,
	})

	require.Len(t, restricts, 3)
	assert.Equal(t, Restrict{Namespace: "chunk_size", AllowList: []string{"1000"}}, restricts[0])
	assert.Equal(t, Restrict{Namespace: "document_id", AllowList: []string{"doc-1"}}, restricts[1])
	assert.Equal(t, Restrict{Namespace: "legal_area", AllowList: []string{"contract"}}, restricts[2])

	assert.Nil(t, MetadataToRestricts(nil))
}

func TestClampSimilarity(t *testing.T) {
	cases := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{0.3, 0.7},
		{1, 0},
		{2.5, 0},
		{-0.5, 1},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, ClampSimilarity(tc.distance), 1e-9,
			"distance %v", tc.distance)
	}
}

func TestStagedFileIsNewlineDelimited(t *testing.T) {
	store := newFakeObjectStore()
	idx, _ := newTestIndex(t, streamDisabledHandler(), store)

	entries := make([]Entry, 5)
	for i := range entries {
		entries[i] = Entry{ID: fmt.Sprintf("doc-1_chunk_%04d", i), Embedding: []float64{float64(i)}}
	}
	outcome, err := idx.Add(context.Background(), entries)
	require.NoError(t, err)
	require.True(t, outcome.Staged)

	raw := store.puts["vector_updates/batch_5.json"]
	dec := json.NewDecoder(bytes.NewReader(raw))
	count := 0
	for dec.More() {
		var rec stagedDatapoint
		require.NoError(t, dec.Decode(&rec))
		count++
	}
	assert.Equal(t, 5, count)
}
