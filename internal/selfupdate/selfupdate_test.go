package selfupdate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
)

func testClient(ts *httptest.Server) *Client {
	c := NewClient()
	c.ReleaseURL = ts.URL
	c.Hosts = append(c.Hosts, ts.URL)
	return c
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int // sign only
	}{
		{"0.2.1", "0.2.0", 1},
		{"0.2.0", "0.2.0", 0},
		{"0.1.9", "0.2.0", -1},
		{"0.10.0", "0.2.0", 1},
		{"1.0.0", "0.99.99", 1},
		{"0.0.1", "0.0.2", -1},
		{"v0.2.1", "0.2.1", 0},
		{"0.2.1", "v0.2.1", 0},
		{"0.2", "0.2.0", 0},
		{"0.2.1-dev", "0.2.1", -1},
		{"0.2.1", "0.2.1-dev", 1},
		{"0.2.1-dev", "0.2.1-dev", 0},
		{"0.3.0", "0.2.1-dev", 1},
		{"0.2.0", "0.2.1-dev", -1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_vs_%s", tt.a, tt.b), func(t *testing.T) {
			got := Compare(tt.a, tt.b)
			switch {
			case tt.want > 0 && got <= 0:
				t.Fatalf("Compare(%q, %q) = %d, want > 0", tt.a, tt.b, got)
			case tt.want < 0 && got >= 0:
				t.Fatalf("Compare(%q, %q) = %d, want < 0", tt.a, tt.b, got)
			case tt.want == 0 && got != 0:
				t.Fatalf("Compare(%q, %q) = %d, want 0", tt.a, tt.b, got)
			}
		})
	}
}

func TestPlatformAsset(t *testing.T) {
	want := fmt.Sprintf("java-lsp-%s-%s.tar.gz", runtime.GOOS, runtime.GOARCH)
	if runtime.GOOS == "windows" {
		want = fmt.Sprintf("java-lsp-%s-%s.zip", runtime.GOOS, runtime.GOARCH)
	}
	if got := PlatformAsset(); got != want {
		t.Fatalf("PlatformAsset() = %q, want %q", got, want)
	}
}

func TestLatest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"tag_name": "v1.0.0",
			"assets": [
				{"name": "java-lsp-linux-amd64.tar.gz", "browser_download_url": "https://example.com/linux.tar.gz", "size": 1024},
				{"name": "checksums.txt", "browser_download_url": "https://example.com/checksums.txt", "size": 256}
			]
		}`)
	}))
	defer ts.Close()

	rel, err := testClient(ts).Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if rel.Version() != "1.0.0" {
		t.Fatalf("Version() = %q, want %q", rel.Version(), "1.0.0")
	}
	if len(rel.Assets) != 2 {
		t.Fatalf("assets = %d, want 2", len(rel.Assets))
	}
	if a := rel.Asset("checksums.txt"); a == nil || a.Size != 256 {
		t.Fatalf("Asset(checksums.txt) = %+v", a)
	}
	if a := rel.Asset("nonexistent"); a != nil {
		t.Fatalf("Asset(nonexistent) = %+v", a)
	}
}

func TestLatestServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	if _, err := testClient(ts).Latest(context.Background()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestFetchRefusesUnknownHost(t *testing.T) {
	c := NewClient()
	if _, err := c.Fetch(context.Background(), "https://evil.example.com/java-lsp.tar.gz"); err == nil {
		t.Fatal("expected refusal for a host outside the allow list")
	}
}

func TestChecksums(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "abc123  file-a.tar.gz\ndef456  file-b.tar.gz\n")
	}))
	defer ts.Close()

	rel := &Release{Assets: []Asset{{Name: "checksums.txt", DownloadURL: ts.URL}}}
	sums, err := testClient(ts).Checksums(context.Background(), rel)
	if err != nil {
		t.Fatalf("Checksums() error: %v", err)
	}
	if sums["file-a.tar.gz"] != "abc123" || sums["file-b.tar.gz"] != "def456" {
		t.Fatalf("checksums = %v", sums)
	}
}

func TestChecksumsMissingAsset(t *testing.T) {
	rel := &Release{Assets: []Asset{{Name: "file-a.tar.gz"}}}
	if _, err := NewClient().Checksums(context.Background(), rel); err == nil {
		t.Fatal("expected error when checksums.txt is absent")
	}
}

func TestChecksumsVerify(t *testing.T) {
	data := []byte("release payload")
	sum := sha256.Sum256(data)
	sums := Checksums{"good.tar.gz": hex.EncodeToString(sum[:]), "bad.tar.gz": "deadbeef"}

	if err := sums.Verify("good.tar.gz", data); err != nil {
		t.Fatalf("Verify(good) error: %v", err)
	}
	if err := sums.Verify("bad.tar.gz", data); err == nil {
		t.Fatal("expected mismatch error")
	}
	if err := sums.Verify("unknown.tar.gz", data); err == nil {
		t.Fatal("expected error for unrecorded artifact")
	}
}
