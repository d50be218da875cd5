// Package vectorindex maintains vector entries in a managed ANN index. The
// index supports two update protocols: synchronous stream upserts that are
// immediately queryable, and staged batch files consumed by an out-of-band
// bulk import. Add falls back from the first to the second when the index
// reports stream updates disabled.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrStreamUnsupported is returned when the index rejects a synchronous
// stream update or delete. Callers detect it with errors.Is; Add handles it
// internally by staging a batch file instead.
var ErrStreamUnsupported = errors.New("stream updates not enabled on index")

// Entry is one row submitted to the index. The entry ID is the chunk ID, so
// no separate mapping table is needed. Metadata values may be strings or
// string slices and become query-time filter restricts.
type Entry struct {
	ID        string
	Embedding []float64
	Metadata  map[string]any
}

// Neighbor is one nearest-neighbor result. SimilarityScore is
// max(0, 1-distance), clamped to [0,1].
type Neighbor struct {
	ID              string  `json:"id"`
	Distance        float64 `json:"distance"`
	SimilarityScore float64 `json:"similarity_score"`
}

// AddOutcome reports how an Add was applied. Staged entries are NOT yet
// queryable: they become visible only after the external bulk import of the
// file at StagedURI completes.
type AddOutcome struct {
	Count     int
	Staged    bool
	StagedURI string
}

// Index is the typed contract against the managed vector index
type Index interface {
	Add(ctx context.Context, entries []Entry) (*AddOutcome, error)
	Query(ctx context.Context, vector []float64, numNeighbors int, filters map[string]any) ([]Neighbor, error)
	Delete(ctx context.Context, ids []string) error
}

// Restrict is a namespace + allowed-value-list attribute constraint. The same
// format is used for query filters and for staged batch files, so filter
// semantics are identical whichever protocol an entry arrived by.
type Restrict struct {
	Namespace string   `json:"namespace"`
	AllowList []string `json:"allow_list"`
}

// MetadataToRestricts converts a flat metadata map to the restrict format.
// Nil and empty values are skipped; scalars become single-element allow lists.
func MetadataToRestricts(metadata map[string]any) []Restrict {
	if len(metadata) == 0 {
		return nil
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var restricts []Restrict
	for _, key := range keys {
		value := metadata[key]
		if key == "" || value == nil {
			continue
		}

		var vals []string
		switch v := value.(type) {
		case string:
			if v != "" {
				vals = []string{v}
			}
		case []string:
			for _, s := range v {
				if s != "" {
					vals = append(vals, s)
				}
			}
		case []any:
			for _, item := range v {
				if s := fmt.Sprint(item); s != "" && item != nil {
					vals = append(vals, s)
				}
			}
		default:
			vals = []string{fmt.Sprint(v)}
		}

		if len(vals) > 0 {
			restricts = append(restricts, Restrict{Namespace: key, AllowList: vals})
		}
	}

	return restricts
}

// ClampSimilarity converts a raw distance to a similarity score in [0,1]
func ClampSimilarity(distance float64) float64 {
	s := 1.0 - distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// validateEntries rejects malformed batches before any network call. All
// entries must carry a non-empty ID and embeddings of one uniform dimension.
func validateEntries(entries []Entry) error {
	if len(entries) == 0 {
		return errors.New("no entries provided")
	}

	dimension := len(entries[0].Embedding)
	for i, entry := range entries {
		if entry.ID == "" {
			return fmt.Errorf("entry at index %d has empty ID", i)
		}
		if len(entry.Embedding) == 0 {
			return fmt.Errorf("entry %s has empty embedding", entry.ID)
		}
		if len(entry.Embedding) != dimension {
			return fmt.Errorf("entry %s has dimension %d, expected %d",
				entry.ID, len(entry.Embedding), dimension)
		}
	}

	return nil
}

// validateIDs rejects a delete batch containing any empty ID (all-or-nothing)
func validateIDs(ids []string) error {
	if len(ids) == 0 {
		return errors.New("no ids provided")
	}
	for i, id := range ids {
		if id == "" {
			return fmt.Errorf("empty id at index %d", i)
		}
	}
	return nil
}
