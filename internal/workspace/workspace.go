// Package workspace materialises submitted source code on scratch storage.
//
// Every execution gets its own directory under the scratch root, named by a fresh
// xid, so two submissions in the same language never overwrite each other's
// Main.<ext> while a container is still reading it.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/xid"

	"github.com/sakif/tomato-slides/internal/apperror"
	"github.com/sakif/tomato-slides/internal/language"
)

// Workspace is one execution's scratch directory and source file.
type Workspace struct {
	ID       string
	Dir      string
	FilePath string
}

// FileName is the source file name relative to Dir.
func (w *Workspace) FileName() string {
	return filepath.Base(w.FilePath)
}

// Remove deletes the workspace directory and everything in it.
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("workspace: removing %s: %w", w.Dir, err)
	}
	return nil
}

// Preparer writes workspaces under a single scratch root.
type Preparer struct {
	root string
}

// NewPreparer returns a Preparer rooted at root. The root is made absolute because
// it is handed to the container runtime as a bind mount source.
func NewPreparer(root string) (*Preparer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolving scratch root %q: %w", root, err)
	}
	return &Preparer{root: abs}, nil
}

// Root returns the absolute scratch root.
func (p *Preparer) Root() string {
	return p.root
}

// Prepare writes source verbatim to <root>/<id>/Main.<ext>.
// A pre-existing root is fine; a failed write returns an ErrStorage AppError.
func (p *Preparer) Prepare(id, source string, profile language.Profile) (*Workspace, error) {
	if id == "" {
		id = xid.New().String()
	}

	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return nil, apperror.StorageFailed("could not create scratch directory", err)
	}

	dir := filepath.Join(p.root, id)
	// 0777 so an unprivileged user inside the container can write compiler output
	// (javac writes Main.class next to the source).
	if err := os.Mkdir(dir, 0o777); err != nil {
		return nil, apperror.StorageFailed("could not create workspace", err)
	}
	if err := os.Chmod(dir, 0o777); err != nil {
		_ = os.RemoveAll(dir)
		return nil, apperror.StorageFailed("could not create workspace", err)
	}

	path := filepath.Join(dir, profile.FileName())
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return nil, apperror.StorageFailed("could not write source file", err)
	}

	return &Workspace{ID: id, Dir: dir, FilePath: path}, nil
}
