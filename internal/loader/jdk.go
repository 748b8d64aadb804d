package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/emilycares/java-lsp/internal/symbol"
)

// jmodMagic prefixes a .jmod file; the rest of the file is a zip archive.
var jmodMagic = []byte{'J', 'M', 0x01, 0x00}

// FindJavaHome locates a JDK install: JAVA_HOME when set, otherwise the
// directory above the first java executable on PATH.
func FindJavaHome() (string, error) {
	if home := os.Getenv("JAVA_HOME"); home != "" {
		return home, nil
	}
	executable := "java"
	if runtime.GOOS == "windows" {
		executable = "java.exe"
	}
	javaPath, err := exec.LookPath(executable)
	if err != nil {
		return "", fmt.Errorf("no JAVA_HOME and no java on PATH: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(javaPath); err == nil {
		javaPath = resolved
	}
	return filepath.Dir(filepath.Dir(javaPath)), nil
}

// IndexRuntime decodes the JDK's platform classes from its jmod archives.
// The result is computed once per runtime installation: the batch is cached
// in the store keyed by the install's release file hash, so later sessions
// skip the decode entirely.
func (l *Loader) IndexRuntime(ctx context.Context, javaHome string) ([]*symbol.Class, error) {
	identity := "jdk:" + javaHome
	return l.loadOnce(ctx, identity, func() ([]*symbol.Class, string, error) {
		contentKey := jdkContentKey(javaHome)

		if cached, ok := l.loadFromStore(identity, contentKey); ok {
			return cached, contentKey, nil
		}

		jmodsDir := filepath.Join(javaHome, "jmods")
		entries, err := os.ReadDir(jmodsDir)
		if err != nil {
			return nil, "", fmt.Errorf("jdk at %s has no jmods directory: %w", javaHome, err)
		}

		var names []string
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".jmod") {
				names = append(names, e.Name())
			}
		}
		// java.base first so core types are available even if later modules fail.
		sort.Slice(names, func(i, j int) bool {
			if names[i] == "java.base.jmod" {
				return true
			}
			if names[j] == "java.base.jmod" {
				return false
			}
			return names[i] < names[j]
		})

		var all []*symbol.Class
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return nil, "", err
			}
			batch, err := decodeJmod(ctx, filepath.Join(jmodsDir, name))
			if err != nil {
				slog.Warn("jdk.module_skipped", "module", name, "err", err)
				continue
			}
			all = append(all, batch...)
		}
		if len(all) == 0 {
			return nil, "", fmt.Errorf("no runtime classes decoded from %s", jmodsDir)
		}
		slog.Info("jdk.indexed", "home", javaHome, "classes", len(all))
		return all, contentKey, nil
	})
}

// jdkContentKey hashes the install's release metadata file, which changes
// with every JDK version. A missing release file falls back to the path.
func jdkContentKey(javaHome string) string {
	data, err := os.ReadFile(filepath.Join(javaHome, "release"))
	if err != nil {
		return "path:" + javaHome
	}
	return fmt.Sprintf("%x", xxh3.Hash(data))
}

// decodeJmod reads one .jmod archive. Class entries live under classes/
// inside the embedded zip, which starts after the 4-byte magic.
func decodeJmod(ctx context.Context, path string) ([]*symbol.Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, jmodMagic) {
		return nil, fmt.Errorf("not a jmod archive: %s", path)
	}
	payload := data[len(jmodMagic):]
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("open jmod %s: %w", path, err)
	}
	classes, skipped, err := decodeZipEntries(ctx, zr, "classes/", symbol.TierRuntime)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		slog.Debug("jdk.partial_decode", "module", filepath.Base(path), "skipped", skipped)
	}
	return classes, nil
}
