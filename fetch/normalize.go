package fetch

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	idPattern         = regexp.MustCompile(`(?i)[0-9a-f]{32}`)
	resolutionPattern = regexp.MustCompile(`(?i)_([0-9]{3,5})\.glb$`)
)

// NormalizeModelID extracts the canonical 32-character hex model ID from
// arbitrary text such as a URL or a list-file line. The first matching run
// wins and is returned lowercased.
func NormalizeModelID(raw string) (string, error) {
	match := idPattern.FindString(strings.TrimSpace(raw))
	if match == "" {
		return "", errors.Wrapf(ErrInvalidModelID, "no 32-character hex ID in %q", raw)
	}
	return strings.ToLower(match), nil
}

// ParseResolution pulls the numeric resolution suffix out of a remote path,
// e.g. "glbs/glbs_1k/000-004/abc_1024.glb" reports 1024. Paths without a
// parseable suffix report 0, the "unknown" resolution.
func ParseResolution(repoPath string) int {
	m := resolutionPattern.FindStringSubmatch(repoPath)
	if m == nil {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return v
}
