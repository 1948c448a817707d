package layout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/trovelabs/trove/config"
)

const DefaultRepoType = "dataset"

var (
	ErrNoLayouts      = errors.New("no storage layouts defined")
	ErrMissingRepoID  = errors.New("layout is missing a repo_id")
	ErrMissingBaseDir = errors.New("layout is missing a base_dir")
	ErrUnknownLayout  = errors.New("layout name is not defined in layouts")
)

// Layout holds repository and path-shape information for one family of
// stored assets.
type Layout struct {
	Name           string
	RepoID         string
	RepoType       string
	BaseDir        string
	FilenameSuffix string
	BucketFormat   string
	BucketCount    int
}

// NormalizedBaseDir is the base dir with surrounding slashes and spaces
// stripped, the form used for prefix matching and path construction.
func (l Layout) NormalizedBaseDir() string {
	return strings.Trim(l.BaseDir, "/ ")
}

// SupportsBucketScan reports whether the layout carries everything a blind
// bucket probe needs: the suffix, the bucket name format, and the count.
func (l Layout) SupportsBucketScan() bool {
	return l.FilenameSuffix != "" && l.BucketFormat != "" && l.BucketCount > 0
}

// BucketName renders the directory name of bucket index i.
func (l Layout) BucketName(i int) string {
	return fmt.Sprintf(l.BucketFormat, i)
}

// Set is the immutable registry of layouts built once from configuration.
// It carries two derived indices: normalized base dir to layout, and
// resolution value to preferred layout.
type Set struct {
	byName       map[string]Layout
	byBaseDir    map[string]Layout
	byResolution map[int]Layout
	fallbackName string
}

// NewSet builds the registry. Every layout needs a repo_id and a base_dir;
// repo_type defaults to "dataset". Resolution mappings and the fallback must
// reference layouts that exist.
func NewSet(layouts map[string]config.Layout, resolutionLayouts map[int]string, fallbackName string) (*Set, error) {
	if len(layouts) == 0 {
		return nil, ErrNoLayouts
	}

	s := &Set{
		byName:       make(map[string]Layout, len(layouts)),
		byBaseDir:    make(map[string]Layout, len(layouts)),
		byResolution: make(map[int]Layout, len(resolutionLayouts)),
		fallbackName: fallbackName,
	}

	for name, raw := range layouts {
		if raw.RepoID == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingRepoID, name)
		}
		if raw.BaseDir == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingBaseDir, name)
		}
		repoType := raw.RepoType
		if repoType == "" {
			repoType = DefaultRepoType
		}
		l := Layout{
			Name:           name,
			RepoID:         raw.RepoID,
			RepoType:       repoType,
			BaseDir:        raw.BaseDir,
			FilenameSuffix: raw.FilenameSuffix,
			BucketFormat:   raw.BucketFormat,
			BucketCount:    raw.BucketCount,
		}
		s.byName[name] = l
		s.byBaseDir[l.NormalizedBaseDir()] = l
	}

	for resolution, name := range resolutionLayouts {
		l, ok := s.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: resolution_layouts[%d] -> %s", ErrUnknownLayout, resolution, name)
		}
		s.byResolution[resolution] = l
	}

	if fallbackName != "" {
		if _, ok := s.byName[fallbackName]; !ok {
			return nil, fmt.Errorf("%w: fallback_bucket_layout -> %s", ErrUnknownLayout, fallbackName)
		}
	}

	return s, nil
}

// ForBasePath maps a repo-relative path back to the layout that owns it. The
// match is on whole path components: a layout with base dir "glbs" owns
// "glbs/..." but not "glbsfoo/...". When base dirs nest, the most specific
// one wins.
func (s *Set) ForBasePath(path string) (Layout, bool) {
	normalized := strings.Trim(path, "/ ")
	var best Layout
	found := false
	for baseDir, l := range s.byBaseDir {
		if !strings.HasPrefix(normalized, baseDir+"/") {
			continue
		}
		if !found || len(baseDir) > len(best.NormalizedBaseDir()) {
			best = l
			found = true
		}
	}
	return best, found
}

// ForResolution returns the layout preferred for an explicit resolution.
func (s *Set) ForResolution(resolution int) (Layout, bool) {
	l, ok := s.byResolution[resolution]
	return l, ok
}

// Fallback returns the default bucket-scan layout, if one is configured.
func (s *Set) Fallback() (Layout, bool) {
	if s.fallbackName == "" {
		return Layout{}, false
	}
	l, ok := s.byName[s.fallbackName]
	return l, ok
}

// Get returns a layout by name.
func (s *Set) Get(name string) (Layout, bool) {
	l, ok := s.byName[name]
	return l, ok
}

// Len reports how many layouts are registered.
func (s *Set) Len() int {
	return len(s.byName)
}
