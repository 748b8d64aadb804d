// Package project extracts the resolved dependency list of a Java project
// from its build tool: pom.xml for Maven, the dependency report for Gradle.
package project

import (
	"fmt"
	"os"
	"path/filepath"
)

// Descriptor is one resolved dependency coordinate plus the binary location
// it maps to. Path is empty when the artifact could not be located locally;
// downstream lookups then degrade to unresolved rather than failing.
type Descriptor struct {
	Group    string
	Artifact string
	Version  string
	Path     string
}

// Identity returns the cache key for the artifact: its coordinate when known,
// else the bare path.
func (d Descriptor) Identity() string {
	if d.Group != "" {
		return fmt.Sprintf("%s:%s:%s", d.Group, d.Artifact, d.Version)
	}
	return d.Path
}

// Resolved reports whether a local binary was found for the coordinate.
func (d Descriptor) Resolved() bool { return d.Path != "" }

// Options overrides artifact locations and build-tool commands. The zero
// value uses the conventional defaults.
type Options struct {
	// MavenRepository is the local repository root. Default: ~/.m2/repository.
	MavenRepository string

	// GradleExecutable is the gradle command used when the project carries no
	// wrapper script. Default: "gradle".
	GradleExecutable string
}

// Resolve inspects the project root and delegates to the matching build-tool
// extractor. A project with neither build file resolves to no dependencies.
func Resolve(root string, opts Options) ([]Descriptor, error) {
	if _, err := os.Stat(filepath.Join(root, "pom.xml")); err == nil {
		return ResolveMaven(root, opts)
	}
	for _, name := range []string{"build.gradle", "build.gradle.kts"} {
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			return ResolveGradle(root, opts)
		}
	}
	return nil, nil
}

// repository returns the local Maven repository path.
func (o Options) repository() (string, error) {
	if o.MavenRepository != "" {
		return o.MavenRepository, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".m2", "repository"), nil
}

// locateJar finds the artifact jar for a coordinate in the local Maven
// repository. Returns "" when absent.
func locateJar(opts Options, group, artifact, version string) string {
	repo, err := opts.repository()
	if err != nil {
		return ""
	}
	jar := filepath.Join(repo,
		filepath.FromSlash(groupPath(group)), artifact, version,
		fmt.Sprintf("%s-%s.jar", artifact, version))
	if _, err := os.Stat(jar); err != nil {
		return ""
	}
	return jar
}

func groupPath(group string) string {
	out := make([]byte, len(group))
	for i := 0; i < len(group); i++ {
		if group[i] == '.' {
			out[i] = '/'
		} else {
			out[i] = group[i]
		}
	}
	return string(out)
}
