package layout

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trovelabs/trove/config"
)

func validLayouts() map[string]config.Layout {
	return map[string]config.Layout{
		"glb_1k": {
			RepoID:         "acme/models-1k",
			BaseDir:        "glbs/glbs_1k",
			FilenameSuffix: "_1024.glb",
			BucketFormat:   "000-%03d",
			BucketCount:    89,
		},
		"glb_full": {
			RepoID:  "acme/models-full",
			BaseDir: "glbs/full",
		},
	}
}

func TestNewSet_Validation(t *testing.T) {
	testCases := []struct {
		name              string
		layouts           map[string]config.Layout
		resolutionLayouts map[int]string
		fallback          string
		expectedErr       error
	}{
		{
			name:        "nil layout map",
			layouts:     nil,
			expectedErr: ErrNoLayouts,
		},
		{
			name:        "empty layout map",
			layouts:     map[string]config.Layout{},
			expectedErr: ErrNoLayouts,
		},
		{
			name: "missing repo id",
			layouts: map[string]config.Layout{
				"broken": {BaseDir: "glbs/broken"},
			},
			expectedErr: ErrMissingRepoID,
		},
		{
			name: "missing base dir",
			layouts: map[string]config.Layout{
				"broken": {RepoID: "acme/broken"},
			},
			expectedErr: ErrMissingBaseDir,
		},
		{
			name:              "resolution maps to unknown layout",
			layouts:           validLayouts(),
			resolutionLayouts: map[int]string{2048: "glb_2k"},
			expectedErr:       ErrUnknownLayout,
		},
		{
			name:        "fallback is unknown layout",
			layouts:     validLayouts(),
			fallback:    "glb_nope",
			expectedErr: ErrUnknownLayout,
		},
		{
			name:              "valid set",
			layouts:           validLayouts(),
			resolutionLayouts: map[int]string{1024: "glb_1k"},
			fallback:          "glb_1k",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewSet(tc.layouts, tc.resolutionLayouts, tc.fallback)
			if tc.expectedErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.expectedErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tc.layouts), s.Len())
		})
	}
}

func TestNewSet_Defaults(t *testing.T) {
	s, err := NewSet(validLayouts(), nil, "")
	require.NoError(t, err)

	l, ok := s.Get("glb_1k")
	require.True(t, ok)
	assert.Equal(t, "glb_1k", l.Name)
	assert.Equal(t, DefaultRepoType, l.RepoType)

	_, ok = s.Get("glb_nope")
	assert.False(t, ok)

	_, ok = s.Fallback()
	assert.False(t, ok, "no fallback configured")
}

func TestForBasePath(t *testing.T) {
	layouts := validLayouts()
	layouts["glb_nested"] = config.Layout{
		RepoID:  "acme/models-nested",
		BaseDir: "glbs/full/extras",
	}
	s, err := NewSet(layouts, nil, "")
	require.NoError(t, err)

	testCases := []struct {
		name         string
		path         string
		expectedName string
		found        bool
	}{
		{
			name:         "direct child",
			path:         "glbs/glbs_1k/000-004/abc_1024.glb",
			expectedName: "glb_1k",
			found:        true,
		},
		{
			name:         "leading slash is tolerated",
			path:         "/glbs/full/abc.glb",
			expectedName: "glb_full",
			found:        true,
		},
		{
			name:  "sibling dir sharing a prefix does not match",
			path:  "glbs/glbs_1k_extra/abc.glb",
			found: false,
		},
		{
			name:  "path equal to the base dir is not inside it",
			path:  "glbs/glbs_1k",
			found: false,
		},
		{
			name:         "nested base dirs pick the most specific",
			path:         "glbs/full/extras/abc.glb",
			expectedName: "glb_nested",
			found:        true,
		},
		{
			name:  "unrelated path",
			path:  "textures/abc.png",
			found: false,
		},
		{
			name:  "empty path",
			path:  "",
			found: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l, ok := s.ForBasePath(tc.path)
			require.Equal(t, tc.found, ok)
			if tc.found {
				assert.Equal(t, tc.expectedName, l.Name)
			}
		})
	}
}

func TestForResolutionAndFallback(t *testing.T) {
	s, err := NewSet(validLayouts(), map[int]string{1024: "glb_1k"}, "glb_full")
	require.NoError(t, err)

	l, ok := s.ForResolution(1024)
	require.True(t, ok)
	assert.Equal(t, "glb_1k", l.Name)

	_, ok = s.ForResolution(2048)
	assert.False(t, ok)

	fb, ok := s.Fallback()
	require.True(t, ok)
	assert.Equal(t, "glb_full", fb.Name)
}

func TestLayoutHelpers(t *testing.T) {
	bucketed := Layout{
		BaseDir:        "/glbs/glbs_1k/",
		FilenameSuffix: "_1024.glb",
		BucketFormat:   "000-%03d",
		BucketCount:    89,
	}
	assert.Equal(t, "glbs/glbs_1k", bucketed.NormalizedBaseDir())
	assert.True(t, bucketed.SupportsBucketScan())
	assert.Equal(t, "000-007", bucketed.BucketName(7))

	testCases := []struct {
		name   string
		layout Layout
	}{
		{name: "no suffix", layout: Layout{BucketFormat: "000-%03d", BucketCount: 1}},
		{name: "no format", layout: Layout{FilenameSuffix: "_1024.glb", BucketCount: 1}},
		{name: "no count", layout: Layout{FilenameSuffix: "_1024.glb", BucketFormat: "000-%03d"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, tc.layout.SupportsBucketScan())
		})
	}
}
