package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultChunkSize keeps chunked commits comfortably below MaxBatchWrites.
const DefaultChunkSize = 400

// Normalize round-trips data through JSON so stored values have the same shape regardless
// of driver: numbers become float64, structs and times become maps and strings.
func Normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode document: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: decode document: %w", err)
	}
	return out, nil
}

// Fields converts a tagged struct into a field map.
func Fields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode fields: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: decode fields: %w", err)
	}
	return out, nil
}

// Decode unmarshals the document's fields into v.
func Decode(doc *Document, v any) error {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("docstore: encode %s: %w", doc.Path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("docstore: decode %s: %w", doc.Path, err)
	}
	return nil
}

// CommitChunked commits writes in batches of at most size. Each batch is atomic; the sequence
// as a whole is not.
func CommitChunked(ctx context.Context, s Store, writes []Write, size int) error {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if size > MaxBatchWrites {
		size = MaxBatchWrites
	}
	for start := 0; start < len(writes); start += size {
		end := min(start+size, len(writes))
		if err := s.Commit(ctx, writes[start:end]); err != nil {
			return fmt.Errorf("docstore: commit writes %d-%d: %w", start, end, err)
		}
	}
	return nil
}
