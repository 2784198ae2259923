// Package library holds the fixed folder and paper catalogue the portal's
// guarded pages render until document ingestion exists.
package library

import (
	"errors"
	"strings"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultListLimit   = 100
	DefaultSearchLimit = 50
)

type Folder struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PaperCount  int    `json:"paper_count"`
}

type Paper struct {
	ID       string   `json:"id"`
	FolderID string   `json:"folder_id"`
	Title    string   `json:"title"`
	Filename string   `json:"filename"`
	Authors  []string `json:"authors"`
	Year     int      `json:"year"`
	Pages    int      `json:"pages"`
	Abstract string   `json:"abstract"`
}

type Catalogue struct {
	folders []Folder
	papers  []Paper
}

func NewCatalogue(folders []Folder, papers []Paper) *Catalogue {
	c := &Catalogue{
		folders: append([]Folder(nil), folders...),
		papers:  append([]Paper(nil), papers...),
	}
	for i := range c.folders {
		c.folders[i].PaperCount = len(c.PapersIn(c.folders[i].ID))
	}
	return c
}

// Default returns the built-in mock catalogue.
func Default() *Catalogue {
	return NewCatalogue(mockFolders, mockPapers)
}

func (c *Catalogue) Folders() []Folder {
	return append([]Folder(nil), c.folders...)
}

func (c *Catalogue) Folder(id string) (Folder, error) {
	for _, f := range c.folders {
		if f.ID == id {
			return f, nil
		}
	}
	return Folder{}, ErrNotFound
}

func (c *Catalogue) Paper(id string) (Paper, error) {
	for _, p := range c.papers {
		if p.ID == id {
			return clonePaper(p), nil
		}
	}
	return Paper{}, ErrNotFound
}

func (c *Catalogue) PapersIn(folderID string) []Paper {
	out := make([]Paper, 0)
	for _, p := range c.papers {
		if p.FolderID == folderID {
			out = append(out, clonePaper(p))
		}
	}
	return out
}

// Search returns up to limit papers whose title, filename or abstract
// contains term, ignoring case. A blank term matches every paper; a limit
// below one means DefaultSearchLimit.
func (c *Catalogue) Search(term string, limit int) []Paper {
	if limit < 1 {
		limit = DefaultSearchLimit
	}
	needle := strings.ToLower(strings.TrimSpace(term))
	out := make([]Paper, 0)
	for _, p := range c.papers {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(p.Title), needle) ||
			strings.Contains(strings.ToLower(p.Filename), needle) ||
			strings.Contains(strings.ToLower(p.Abstract), needle) {
			out = append(out, clonePaper(p))
		}
	}
	return out
}

// Window returns at most limit items starting at offset. Offsets past the
// end yield an empty slice.
func Window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) || limit < 1 {
		return []T{}
	}
	end := offset + limit
	if end > len(items) || end < offset {
		end = len(items)
	}
	return items[offset:end]
}

func clonePaper(p Paper) Paper {
	p.Authors = append([]string(nil), p.Authors...)
	return p
}
