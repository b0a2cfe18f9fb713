package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const githubReleaseURL = "https://api.github.com/repos/3rg0n/vantage/releases/latest"

// GitHubRelease represents the GitHub API release response
type GitHubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// CheckForUpdate asks releaseURL for the latest release of vantage.
// Returns (latestTag, updateAvailable, error). Dev builds never report updates.
func CheckForUpdate(ctx context.Context, current, releaseURL string) (string, bool, error) {
	if current == "dev" || current == "" {
		return "", false, nil
	}

	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releaseURL, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "vantage/"+current)

	resp, err := client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", false, err
	}

	if compareVersions(release.TagName, current) > 0 {
		return release.TagName, true, nil
	}
	return release.TagName, false, nil
}

// compareVersions orders two release versions with or without the leading "v".
// Missing minor or patch components count as zero.
func compareVersions(a, b string) int {
	return semver.Compare("v"+strings.TrimPrefix(a, "v"), "v"+strings.TrimPrefix(b, "v"))
}

// GetUpdateCommand returns the install command for the current platform
func GetUpdateCommand() string {
	switch runtime.GOOS {
	case "darwin":
		return "brew upgrade vantage"
	case "windows":
		return "scoop update vantage"
	default:
		return "go install github.com/3rg0n/vantage@latest"
	}
}

// PrintVersion writes the version line and, when check is set, an update notice
func PrintVersion(ctx context.Context, w io.Writer, check bool) error {
	fmt.Fprintf(w, "vantage %s (built %s, %s/%s)\n", Version, BuildDate, runtime.GOOS, runtime.GOARCH)
	if !check {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	latest, available, err := CheckForUpdate(ctx, Version, githubReleaseURL)
	if err != nil {
		return &UserError{Kind: KindTransport, Message: "Update check failed", Cause: err}
	}
	switch {
	case available:
		fmt.Fprintf(w, "\n\033[93mUpdate available:\033[0m %s -> %s\n", Version, latest)
		fmt.Fprintf(w, "Run: \033[96m%s\033[0m\n", GetUpdateCommand())
	case latest == "":
		fmt.Fprintln(w, "Development build; update check skipped.")
	default:
		fmt.Fprintln(w, "You are running the latest version.")
	}
	return nil
}
