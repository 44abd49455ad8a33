package version

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// Version is set at build time using -ldflags.
	Version = "dev"

	// CommitHash is the git commit hash.
	CommitHash = "unknown"

	// BuildDate is the build date.
	BuildDate = "unknown"
)

// FullVersion returns the complete version string including commit and
// build information.
func FullVersion() string {
	return fmt.Sprintf("botvinnik version: %s (commit: %s, built: %s)", Version, CommitHash, BuildDate)
}

// ShortVersion returns just the version number.
func ShortVersion() string {
	return Version
}

// CheckForUpdate reports whether a newer release is available. Dev builds
// skip the check entirely.
func CheckForUpdate() (bool, string, error) {
	if Version == "dev" || Version == "" || strings.Contains(Version, "dirty") {
		return false, "", nil
	}

	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	// The latest-release redirect carries the tag in the Location header
	// and does not count against API rate limits.
	resp, err := client.Head("https://github.com/striezel/botvinnik/releases/latest")
	if err != nil {
		return false, "", fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusMovedPermanently {
		return false, "", nil
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return false, "", fmt.Errorf("no redirect location found")
	}

	parts := strings.Split(location, "/")
	latestTag := parts[len(parts)-1]

	if compareVersions(latestTag, Version) > 0 {
		return true, latestTag, nil
	}
	return false, latestTag, nil
}

// compareVersions compares two semantic versions, returning 1, -1 or 0.
func compareVersions(v1, v2 string) int {
	v1 = strings.TrimPrefix(v1, "v")
	v2 = strings.TrimPrefix(v2, "v")

	parts1 := strings.Split(v1, ".")
	parts2 := strings.Split(v2, ".")
	for len(parts1) < 3 {
		parts1 = append(parts1, "0")
	}
	for len(parts2) < 3 {
		parts2 = append(parts2, "0")
	}

	for i := 0; i < 3; i++ {
		var n1, n2 int
		fmt.Sscanf(parts1[i], "%d", &n1)
		fmt.Sscanf(parts2[i], "%d", &n2)
		if n1 > n2 {
			return 1
		}
		if n1 < n2 {
			return -1
		}
	}
	return 0
}
