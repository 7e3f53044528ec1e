// Package language holds the table of languages the sandbox can run.
//
// Each Profile is declarative: a file extension, a container image and a command
// template. The template only ever sees the fixed source file name (Main.<ext>),
// never the submitted code, so nothing a student writes can reach a shell command line.
package language

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sakif/tomato-slides/internal/apperror"
)

// SourceBaseName is the base name of every source file written to a workspace.
// Java needs it to match the public class name.
const SourceBaseName = "Main"

// Profile describes how to run one language inside the sandbox.
type Profile struct {
	ID        string
	Extension string
	Image     string
	// Command builds the shell command run inside the container for the given
	// source file name (e.g. "Main.py").
	Command func(filename string) string
}

// FileName returns the source file name for this profile, e.g. "Main.java".
func (p Profile) FileName() string {
	return SourceBaseName + "." + p.Extension
}

// RunCommand is the command for this profile's own source file.
func (p Profile) RunCommand() string {
	return p.Command(p.FileName())
}

// Defaults returns the built-in profiles.
func Defaults() []Profile {
	return []Profile{
		{
			ID:        "python",
			Extension: "py",
			Image:     "python:3.10",
			Command:   func(filename string) string { return "python " + filename },
		},
		{
			ID:        "javascript",
			Extension: "js",
			Image:     "node:20",
			Command:   func(filename string) string { return "node " + filename },
		},
		{
			ID:        "java",
			Extension: "java",
			Image:     "openjdk:17",
			Command: func(filename string) string {
				return fmt.Sprintf("javac %s && java %s", filename, strings.TrimSuffix(filename, ".java"))
			},
		},
	}
}

// Registry maps language ids to profiles. It is built once at startup and only
// read afterwards, so it is safe for concurrent use without locking.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry builds a registry from the given profiles. Later profiles with the
// same id replace earlier ones, which is how a languages file overrides a default.
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if err := validate(p); err != nil {
			return nil, err
		}
		r.profiles[p.ID] = p
	}
	return r, nil
}

// NewDefaultRegistry returns a registry containing only the built-in profiles.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(Defaults()...)
	if err != nil {
		// Defaults are static; failing here is a programming error.
		panic(err)
	}
	return r
}

// Lookup returns the profile for id. An unknown id is a caller error.
func (r *Registry) Lookup(id string) (Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, apperror.ValidationFailed("language", fmt.Sprintf("unsupported language %q", id))
	}
	return p, nil
}

// ByExtension finds the profile whose source files use ext ("py" or ".py").
// When several profiles share an extension the lowest id wins.
func (r *Registry) ByExtension(ext string) (Profile, bool) {
	ext = strings.TrimPrefix(ext, ".")
	for _, id := range r.IDs() {
		if p := r.profiles[id]; p.Extension == ext {
			return p, true
		}
	}
	return Profile{}, false
}

// IDs returns the supported language ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Images returns the distinct container images used by the registry.
func (r *Registry) Images() []string {
	seen := make(map[string]struct{}, len(r.profiles))
	images := make([]string, 0, len(r.profiles))
	for _, id := range r.IDs() {
		img := r.profiles[id].Image
		if _, ok := seen[img]; ok {
			continue
		}
		seen[img] = struct{}{}
		images = append(images, img)
	}
	return images
}

func validate(p Profile) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("language: profile id is required")
	case p.Extension == "" || strings.ContainsAny(p.Extension, `/\. `):
		return fmt.Errorf("language: profile %s: invalid extension %q", p.ID, p.Extension)
	case p.Image == "":
		return fmt.Errorf("language: profile %s: image is required", p.ID)
	case p.Command == nil:
		return fmt.Errorf("language: profile %s: command is required", p.ID)
	}
	return nil
}
