package language

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileProfile is one entry of a languages file:
//
//	languages:
//	  ruby:
//	    extension: rb
//	    image: ruby:3.3-slim
//	    command: ruby {{file}}
//	  java:
//	    extension: java
//	    image: eclipse-temurin:21
//	    command: javac {{file}} && java {{name}}
//
// {{file}} expands to the source file name, {{name}} to the name without extension.
type fileProfile struct {
	Extension string `yaml:"extension"`
	Image     string `yaml:"image"`
	Command   string `yaml:"command"`
}

type languagesFile struct {
	Languages map[string]fileProfile `yaml:"languages"`
}

// LoadFile reads extra profiles from a YAML file.
func LoadFile(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("language: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a languages document.
func Parse(data []byte) ([]Profile, error) {
	var doc languagesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("language: parsing languages file: %w", err)
	}

	profiles := make([]Profile, 0, len(doc.Languages))
	for id, fp := range doc.Languages {
		if !strings.Contains(fp.Command, "{{file}}") && !strings.Contains(fp.Command, "{{name}}") {
			return nil, fmt.Errorf("language: %s: command must reference {{file}} or {{name}}", id)
		}
		profiles = append(profiles, Profile{
			ID:        id,
			Extension: fp.Extension,
			Image:     fp.Image,
			Command:   commandTemplate(fp.Command),
		})
	}
	return profiles, nil
}

func commandTemplate(tmpl string) func(string) string {
	return func(filename string) string {
		name := filename
		if i := strings.LastIndexByte(filename, '.'); i > 0 {
			name = filename[:i]
		}
		return strings.NewReplacer("{{file}}", filename, "{{name}}", name).Replace(tmpl)
	}
}

// Load builds the registry from the defaults plus an optional languages file.
// An empty path means defaults only.
func Load(path string) (*Registry, error) {
	profiles := Defaults()
	if path != "" {
		extra, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, extra...)
	}
	return NewRegistry(profiles...)
}
