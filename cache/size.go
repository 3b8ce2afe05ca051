package cache

import "encoding/json"

const (
	// entryOverhead approximates the bookkeeping cost of one entry
	// (timestamps, counters, list element, map slot).
	entryOverhead = 256

	// fallbackArtifactSize is charged for artifacts that cannot be measured.
	fallbackArtifactSize = 1024
)

// estimateSize approximates the memory held by an entry.
func estimateSize(key, templateID string, artifact any) int64 {
	return int64(entryOverhead+len(key)+len(templateID)) + artifactSize(artifact)
}

func artifactSize(artifact any) (size int64) {
	switch v := artifact.(type) {
	case nil:
		return 0
	case string:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	}

	// A misbehaving MarshalJSON must not take the cache down
	defer func() {
		if recover() != nil {
			size = fallbackArtifactSize
		}
	}()

	data, err := json.Marshal(artifact)
	if err != nil {
		return fallbackArtifactSize
	}
	return int64(len(data))
}
