package manifest

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

var ErrCorrupt = errors.New("metadata manifest is corrupt")

// Record lists every known remote path for one model. Each path implicitly
// carries a resolution as a numeric suffix in its filename.
type Record struct {
	GLBPaths []string `json:"glb_paths"`
}

// Index is the in-memory metadata index keyed by model ID. It is loaded once
// and never mutated, so it is safe to share across sequential lookups.
type Index struct {
	records map[string]Record
}

// Load reads the manifest at path. A missing file is not an error: Load
// returns (nil, nil) and metadata-assisted resolution is skipped entirely.
// A file that exists but does not parse fails with ErrCorrupt.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not read metadata manifest %s", path)
	}

	var records map[string]Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "%s: %v", path, err)
	}

	return &Index{records: records}, nil
}

// Lookup returns the record for a model ID. Safe on a nil index, which
// simply never matches.
func (x *Index) Lookup(modelID string) (Record, bool) {
	if x == nil {
		return Record{}, false
	}
	rec, ok := x.records[modelID]
	return rec, ok
}

// Len reports how many models the index knows about. Zero on a nil index.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.records)
}
