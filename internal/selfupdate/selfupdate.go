// Package selfupdate talks to the GitHub releases API to find and fetch
// newer builds of the server binary.
package selfupdate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Client queries one release feed. The zero value is not usable; NewClient
// points it at the project's GitHub repository.
type Client struct {
	// ReleaseURL is the endpoint answering latest-release metadata.
	ReleaseURL string
	// Hosts are the URL prefixes downloads are allowed from. Anything
	// else is refused before a request is made.
	Hosts []string
	// HTTP is the client used for all requests.
	HTTP *http.Client
}

// NewClient returns a client bound to the java-lsp releases on GitHub.
func NewClient() *Client {
	return &Client{
		ReleaseURL: "https://api.github.com/repos/emilycares/java-lsp/releases/latest",
		Hosts: []string{
			"https://github.com/",
			"https://api.github.com/",
		},
		HTTP: http.DefaultClient,
	}
}

// Release is the metadata of one published release.
type Release struct {
	Tag    string  `json:"tag_name"`
	Assets []Asset `json:"assets"`
}

// Asset is one downloadable artifact attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	Size        int64  `json:"size"`
}

// Version is the release tag without its "v" prefix.
func (r *Release) Version() string {
	return strings.TrimPrefix(r.Tag, "v")
}

// Asset returns the named artifact, or nil when the release has none.
func (r *Release) Asset(name string) *Asset {
	for i := range r.Assets {
		if r.Assets[i].Name == name {
			return &r.Assets[i]
		}
	}
	return nil
}

// Latest fetches metadata for the newest published release.
func (c *Client) Latest(ctx context.Context) (*Release, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ReleaseURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query releases: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query releases: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read release metadata: %w", err)
	}
	var rel Release
	if err := json.Unmarshal(body, &rel); err != nil {
		return nil, fmt.Errorf("decode release metadata: %w", err)
	}
	return &rel, nil
}

// Fetch downloads one artifact into memory. The URL must sit under one of
// the client's allowed hosts.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	ok := false
	for _, host := range c.Hosts {
		if strings.HasPrefix(rawURL, host) {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("refusing download from %s", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Checksums maps artifact names to their hex SHA-256 digests.
type Checksums map[string]string

// Checksums fetches and parses the release's checksums.txt artifact.
func (c *Client) Checksums(ctx context.Context, r *Release) (Checksums, error) {
	asset := r.Asset("checksums.txt")
	if asset == nil {
		return nil, fmt.Errorf("release %s carries no checksums.txt", r.Tag)
	}
	data, err := c.Fetch(ctx, asset.DownloadURL)
	if err != nil {
		return nil, err
	}
	return ParseChecksums(data), nil
}

// ParseChecksums reads the "digest  filename" line format written by
// sha256sum and goreleaser alike.
func ParseChecksums(data []byte) Checksums {
	sums := make(Checksums)
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) >= 2 {
			sums[fields[1]] = fields[0]
		}
	}
	return sums
}

// Verify hashes data and compares it against the recorded digest for name.
func (s Checksums) Verify(name string, data []byte) error {
	want, ok := s[name]
	if !ok {
		return fmt.Errorf("no checksum recorded for %s", name)
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != want {
		return fmt.Errorf("checksum mismatch for %s: want %s, got %s", name, want, got)
	}
	return nil
}

// PlatformAsset is the artifact name published for the running platform.
func PlatformAsset() string {
	ext := "tar.gz"
	if runtime.GOOS == "windows" {
		ext = "zip"
	}
	return fmt.Sprintf("java-lsp-%s-%s.%s", runtime.GOOS, runtime.GOARCH, ext)
}

// Compare orders two version strings: positive when a is newer, negative
// when b is, zero when equal. A pre-release suffix sorts below the bare
// version it precedes.
func Compare(a, b string) int {
	av, apre := parseVersion(a)
	bv, bpre := parseVersion(b)
	for i := range av {
		if av[i] != bv[i] {
			return av[i] - bv[i]
		}
	}
	switch {
	case apre && !bpre:
		return -1
	case !apre && bpre:
		return 1
	}
	return 0
}

// parseVersion splits "v1.2.3-rc1" into its numeric triple and a
// pre-release flag. Missing components read as zero.
func parseVersion(s string) ([3]int, bool) {
	s = strings.TrimPrefix(s, "v")
	base, _, pre := strings.Cut(s, "-")
	var v [3]int
	for i, part := range strings.SplitN(base, ".", 3) {
		n, err := strconv.Atoi(part)
		if err != nil {
			break
		}
		v[i] = n
	}
	return v, pre
}
