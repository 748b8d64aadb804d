package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emilycares/java-lsp/internal/selfupdate"
)

var flagUpdateDryRun bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update java-lsp to the latest release",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate(cmd, flagUpdateDryRun)
	},
}

func init() {
	updateCmd.Flags().BoolVar(&flagUpdateDryRun, "dry-run", false, "check for an update without installing it")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, dryRun bool) error {
	if runtime.GOOS == "windows" {
		return fmt.Errorf("self-update is not supported on Windows; download the latest release from https://github.com/emilycares/java-lsp/releases/latest")
	}

	ctx := cmd.Context()
	client := selfupdate.NewClient()
	release, err := client.Latest(ctx)
	if err != nil {
		return fmt.Errorf("fetch release: %w", err)
	}
	latest := release.Version()
	if latest == "" {
		return fmt.Errorf("could not determine the latest version")
	}

	current := strings.TrimSuffix(version, "-dev")
	if selfupdate.Compare(latest, current) <= 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "java-lsp v%s is already the newest release.\n", current)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updating java-lsp v%s -> v%s\n", current, latest)

	assetName := selfupdate.PlatformAsset()
	asset := release.Asset(assetName)
	if asset == nil {
		return fmt.Errorf("no release asset for %s/%s (%s)", runtime.GOOS, runtime.GOARCH, assetName)
	}

	if dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Would download %s (%d bytes) and replace the running binary.\n", assetName, asset.Size)
		return nil
	}

	binary, err := downloadAndVerify(cmd, client, release, asset)
	if err != nil {
		return err
	}
	if err := replaceBinary(binary); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated to v%s.\n", latest)
	return nil
}

// downloadAndVerify fetches the platform archive and checks it against the
// release's published digests when they exist.
func downloadAndVerify(cmd *cobra.Command, client *selfupdate.Client, release *selfupdate.Release, asset *selfupdate.Asset) ([]byte, error) {
	sums, err := client.Checksums(cmd.Context(), release)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v (skipping checksum verification)\n", err)
	}

	archive, err := client.Fetch(cmd.Context(), asset.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if len(sums) > 0 {
		if err := sums.Verify(asset.Name, archive); err != nil {
			return nil, err
		}
	}
	return extractBinary(archive)
}

// extractBinary pulls the java-lsp executable out of a release tarball.
func extractBinary(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tar: %w", err)
		}
		if hdr.Typeflag == tar.TypeReg && strings.HasPrefix(filepath.Base(hdr.Name), "java-lsp") {
			return io.ReadAll(tr)
		}
	}
	return nil, fmt.Errorf("binary not found in archive")
}

// replaceBinary swaps the running executable, keeping a backup until the new
// binary answers --version.
func replaceBinary(data []byte) error {
	path, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate binary: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := os.Chmod(tmp, 0o755); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chmod temp: %w", err)
	}

	bak := path + ".bak"
	if err := copyFile(path, bak); err != nil {
		fmt.Fprintf(os.Stderr, "warning: backup failed: %v\n", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}

	if err := verifyBinary(path); err != nil {
		if restoreErr := os.Rename(bak, path); restoreErr != nil {
			return fmt.Errorf("restore failed (%v), backup at %s", restoreErr, bak)
		}
		return fmt.Errorf("new binary verification failed: %w", err)
	}
	os.Remove(bak)
	return nil
}

// verifyBinary runs --version on the new binary before committing to it.
var verifyBinary = func(path string) error {
	out, err := exec.Command(path, "--version").Output()
	if err != nil {
		return fmt.Errorf("--version failed: %w", err)
	}
	if !strings.Contains(string(out), "java-lsp") {
		return fmt.Errorf("unexpected output: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
