package linkcheck

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/docpublisher/internal/logfields"
)

// Page is a rendered page selected for checking.
type Page struct {
	// Source is the notebook path relative to the docs directory.
	Source string
	// Rel is the rendered page path relative to the site directory.
	Rel string
	// HTML is the absolute rendered page path.
	HTML string
}

// Selector maps notebook sources to rendered pages.
type Selector struct {
	DocsDir string
	SiteDir string
	// Glob selects notebook sources, relative to DocsDir.
	Glob string
	// Excluded holds sources (or doublestar patterns) that are never checked.
	Excluded []string
	Logger   *slog.Logger
}

// PagePath maps a notebook source to its rendered page using directory
// URLs: a/b/c.ipynb becomes a/b/c/index.html and a/b/index.ipynb becomes
// a/b/index.html.
func PagePath(source string) string {
	source = filepath.ToSlash(source)
	dir, file := path.Split(source)
	stem := strings.TrimSuffix(file, path.Ext(file))
	if stem == "index" {
		return path.Join(dir, "index.html")
	}
	return path.Join(dir, stem, "index.html")
}

// All selects every notebook source under DocsDir.
func (s *Selector) All() ([]Page, error) {
	sources, err := doublestar.Glob(os.DirFS(s.DocsDir), s.glob(), doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob notebooks in %s: %w", s.DocsDir, err)
	}
	return s.pages(sources), nil
}

// Changed selects pages for the given changed sources (relative to
// DocsDir), keeping only notebook sources.
func (s *Selector) Changed(sources []string) []Page {
	var matched []string
	for _, src := range sources {
		src = filepath.ToSlash(src)
		if ok, _ := doublestar.Match(s.glob(), src); ok {
			matched = append(matched, src)
		}
	}
	return s.pages(matched)
}

func (s *Selector) glob() string {
	if s.Glob == "" {
		return "**/*.ipynb"
	}
	return s.Glob
}

func (s *Selector) pages(sources []string) []Page {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sort.Strings(sources)

	var pages []Page
	for _, src := range sources {
		if s.excluded(src) {
			logger.Debug("Skipping excluded page", logfields.Path(src))
			continue
		}
		rel := PagePath(src)
		abs := filepath.Join(s.SiteDir, filepath.FromSlash(rel))
		if _, err := os.Stat(abs); err != nil {
			logger.Warn("Rendered page not found", logfields.Path(src), slog.String("page", rel))
			continue
		}
		pages = append(pages, Page{Source: src, Rel: rel, HTML: abs})
	}
	return pages
}

func (s *Selector) excluded(src string) bool {
	for _, ex := range s.Excluded {
		ex = filepath.ToSlash(ex)
		if ex == src {
			return true
		}
		if ok, _ := doublestar.Match(ex, src); ok {
			return true
		}
	}
	return false
}
