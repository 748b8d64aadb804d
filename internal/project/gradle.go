package project

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveGradle runs the project's dependency report and maps each coordinate
// to a local jar, preferring the Gradle module cache and falling back to the
// Maven repository.
func ResolveGradle(root string, opts Options) ([]Descriptor, error) {
	out, err := gradleDependencyReport(root, opts)
	if err != nil {
		return nil, err
	}
	coords := ParseGradleTree(out)

	descriptors := make([]Descriptor, 0, len(coords))
	for _, d := range coords {
		d.Path = locateGradleJar(d.Group, d.Artifact, d.Version)
		if d.Path == "" {
			d.Path = locateJar(opts, d.Group, d.Artifact, d.Version)
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// gradleDependencyReport prefers the project's wrapper script; otherwise the
// configured executable, falling back to gradle on PATH.
func gradleDependencyReport(root string, opts Options) (string, error) {
	executable := filepath.Join(root, "gradlew")
	if runtime.GOOS == "windows" {
		executable += ".bat"
	}
	if _, err := os.Stat(executable); err != nil {
		executable = opts.GradleExecutable
		if executable == "" {
			executable = "gradle"
		}
	}
	cmd := exec.Command(executable, "dependencies", "--console", "plain")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("gradle dependencies: %w", err)
	}
	return string(out), nil
}

// ParseGradleTree extracts coordinates from `gradle dependencies --console
// plain` output. Capture starts at a configuration header line (" - ...")
// and stops at the constraint legend. Tree drawing characters and resolution
// markers like (*) are stripped before splitting group:artifact:version.
func ParseGradleTree(report string) []Descriptor {
	var out []Descriptor
	seen := make(map[string]bool)
	capture := false

	for _, line := range strings.Split(report, "\n") {
		if strings.HasPrefix(line, "(c) - A dependency constraint") {
			break
		}
		if strings.Contains(line, " - ") && strings.HasSuffix(strings.TrimRight(line, "\r"), ".") {
			capture = true
			continue
		}
		if !capture || line == "" || strings.HasPrefix(line, "No dependencies") {
			continue
		}

		cleaned := strings.NewReplacer(
			"\\", "", "+", "", "|", "", " ", "",
			"(*)", "", "(n)", "", "(c)", "",
		).Replace(line)
		cleaned = strings.TrimRight(cleaned, "\r")
		cleaned = strings.TrimLeft(cleaned, "-")

		// "org.slf4j:slf4j-api:2.0.9" or "...:1.0 -> 1.2" after an upgrade
		if arrow := strings.Index(cleaned, "->"); arrow >= 0 {
			base := cleaned[:arrow]
			upgraded := cleaned[arrow+2:]
			if idx := strings.LastIndex(base, ":"); idx >= 0 {
				cleaned = base[:idx+1] + upgraded
			}
		}

		parts := strings.Split(cleaned, ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			continue
		}
		key := cleaned
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Descriptor{Group: parts[0], Artifact: parts[1], Version: parts[2]})
	}
	return out
}

// locateGradleJar searches the Gradle module cache layout:
// ~/.gradle/caches/modules-2/files-2.1/<group>/<artifact>/<version>/<sha1>/<artifact>-<version>.jar
func locateGradleJar(group, artifact, version string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	versionDir := filepath.Join(home, ".gradle", "caches", "modules-2", "files-2.1",
		group, artifact, version)
	entries, err := os.ReadDir(versionDir)
	if err != nil {
		return ""
	}
	want := fmt.Sprintf("%s-%s.jar", artifact, version)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jar := filepath.Join(versionDir, entry.Name(), want)
		if _, err := os.Stat(jar); err == nil {
			return jar
		}
	}
	return ""
}
