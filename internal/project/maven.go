package project

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// pom mirrors the subset of pom.xml the resolver reads.
type pom struct {
	XMLName      xml.Name `xml:"project"`
	GroupID      string   `xml:"groupId"`
	ArtifactID   string   `xml:"artifactId"`
	Version      string   `xml:"version"`
	Parent       pomRef   `xml:"parent"`
	Properties   props    `xml:"properties"`
	Dependencies []pomRef `xml:"dependencies>dependency"`
	Management   []pomRef `xml:"dependencyManagement>dependencies>dependency"`
	Modules      []string `xml:"modules>module"`
}

type pomRef struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
}

// props decodes <properties> as free-form name/value pairs.
type props map[string]string

func (p *props) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	*p = make(map[string]string)
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			var value string
			if err := d.DecodeElement(&value, &el); err != nil {
				return err
			}
			(*p)[el.Name.Local] = strings.TrimSpace(value)
		case xml.EndElement:
			if el.Name == start.Name {
				return nil
			}
		}
	}
}

// ResolveMaven reads pom.xml (recursing into declared modules) and maps each
// dependency to its jar in the local repository. Dependencies without a
// locatable jar are still returned so the caller can report them.
func ResolveMaven(root string, opts Options) ([]Descriptor, error) {
	p, err := loadPom(filepath.Join(root, "pom.xml"))
	if err != nil {
		return nil, err
	}

	managed := make(map[string]string) // group:artifact -> version
	for _, m := range p.Management {
		managed[m.GroupID+":"+m.ArtifactID] = m.Version
	}

	var out []Descriptor
	seen := make(map[string]bool)
	appendDeps(p, opts, managed, seen, &out)

	for _, module := range p.Modules {
		sub, err := loadPom(filepath.Join(root, module, "pom.xml"))
		if err != nil {
			slog.Warn("maven.module_skipped", "module", module, "err", err)
			continue
		}
		appendDeps(sub, opts, managed, seen, &out)
	}
	return out, nil
}

func loadPom(path string) (*pom, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pom: %w", err)
	}
	var p pom
	if err := xml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse pom: %w", err)
	}
	return &p, nil
}

func appendDeps(p *pom, opts Options, managed map[string]string, seen map[string]bool, out *[]Descriptor) {
	for _, dep := range p.Dependencies {
		group := expand(dep.GroupID, p)
		artifact := expand(dep.ArtifactID, p)
		version := expand(dep.Version, p)
		if version == "" {
			version = managed[group+":"+artifact]
		}
		if group == "" || artifact == "" || version == "" {
			continue
		}
		key := group + ":" + artifact + ":" + version
		if seen[key] {
			continue
		}
		seen[key] = true
		*out = append(*out, Descriptor{
			Group:    group,
			Artifact: artifact,
			Version:  version,
			Path:     locateJar(opts, group, artifact, version),
		})
	}
}

// expand substitutes ${property} references from <properties> and the common
// project.* built-ins. Unknown properties stay literal.
func expand(value string, p *pom) string {
	if !strings.Contains(value, "${") {
		return value
	}
	return os.Expand(value, func(name string) string {
		switch name {
		case "project.version":
			if p.Version != "" {
				return p.Version
			}
			return p.Parent.Version
		case "project.groupId":
			if p.GroupID != "" {
				return p.GroupID
			}
			return p.Parent.GroupID
		}
		if v, ok := p.Properties[name]; ok {
			return v
		}
		return "${" + name + "}"
	})
}
