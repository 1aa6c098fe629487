// Package catalog holds the static set of industries, packs and documents that can be generated.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Includes string

const (
	IncludesSubset        Includes = "subset"
	IncludesAll           Includes = "all"
	IncludesAllPlusExtras Includes = "all-plus-extras"
)

type Pack struct {
	ID       string         `yaml:"id" json:"id"`
	Label    string         `yaml:"label" json:"label"`
	Price    int            `yaml:"price" json:"price"`
	Formats  []model.Format `yaml:"formats" json:"formats"`
	Includes Includes       `yaml:"includes" json:"includes"`
}

func (p *Pack) OffersFormat(f model.Format) bool {
	for _, have := range p.Formats {
		if have == f {
			return true
		}
	}
	return false
}

type Document struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	InLite      bool   `yaml:"in_lite" json:"inLite"`
}

type Industry struct {
	ID        string     `yaml:"id" json:"id"`
	Label     string     `yaml:"label" json:"label"`
	Packs     []Pack     `yaml:"packs" json:"packs"`
	Documents []Document `yaml:"documents" json:"documents"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	industries []Industry
	byID       map[string]*Industry
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse builds a catalog from YAML and checks it for duplicate or unknown entries.
func Parse(b []byte) (*Catalog, error) {
	var raw struct {
		Industries []Industry `yaml:"industries"`
	}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{industries: raw.Industries, byID: make(map[string]*Industry, len(raw.Industries))}
	for i := range c.industries {
		ind := &c.industries[i]
		if _, dup := c.byID[ind.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate industry %q", ind.ID)
		}
		seen := map[string]bool{}
		for _, d := range ind.Documents {
			if seen[d.ID] {
				return nil, fmt.Errorf("catalog: duplicate document %q in %q", d.ID, ind.ID)
			}
			seen[d.ID] = true
		}
		for _, p := range ind.Packs {
			switch p.Includes {
			case IncludesSubset, IncludesAll, IncludesAllPlusExtras:
			default:
				return nil, fmt.Errorf("catalog: pack %q in %q has unknown includes %q", p.ID, ind.ID, p.Includes)
			}
		}
		c.byID[ind.ID] = ind
	}
	return c, nil
}

func (c *Catalog) Industries() []Industry { return c.industries }

func (c *Catalog) Industry(id string) (*Industry, error) {
	ind, ok := c.byID[id]
	if !ok {
		return nil, domain.ErrUnknownIndustry
	}
	return ind, nil
}

func (c *Catalog) Pack(industryID, packID string) (*Pack, error) {
	ind, err := c.Industry(industryID)
	if err != nil {
		return nil, err
	}
	for i := range ind.Packs {
		if ind.Packs[i].ID == packID {
			return &ind.Packs[i], nil
		}
	}
	return nil, domain.ErrUnknownPack
}

func (c *Catalog) Document(industryID, docID string) (*Document, error) {
	ind, err := c.Industry(industryID)
	if err != nil {
		return nil, err
	}
	for i := range ind.Documents {
		if ind.Documents[i].ID == docID {
			return &ind.Documents[i], nil
		}
	}
	return nil, domain.ErrUnknownDocument
}

// DocumentsForPack lists the documents a pack includes. Lite packs only carry documents
// flagged in_lite; the other pack kinds carry the full industry list.
func (c *Catalog) DocumentsForPack(industryID, packID string) ([]Document, error) {
	ind, err := c.Industry(industryID)
	if err != nil {
		return nil, err
	}
	p, err := c.Pack(industryID, packID)
	if err != nil {
		return nil, err
	}
	if p.Includes != IncludesSubset {
		return ind.Documents, nil
	}
	var out []Document
	for _, d := range ind.Documents {
		if d.InLite {
			out = append(out, d)
		}
	}
	return out, nil
}

// Validate checks a generation request against the catalog and returns the resolved
// documents in request order.
func (c *Catalog) Validate(industryID, packID string, docIDs []string, f model.Format) ([]Document, error) {
	p, err := c.Pack(industryID, packID)
	if err != nil {
		return nil, err
	}
	if !p.OffersFormat(f) {
		return nil, fmt.Errorf("%w: %s", domain.ErrFormatNotAvailable, f)
	}
	if len(docIDs) == 0 {
		return nil, fmt.Errorf("%w: no documents requested", domain.ErrInvalidArgument)
	}
	included, err := c.DocumentsForPack(industryID, packID)
	if err != nil {
		return nil, err
	}
	inPack := make(map[string]Document, len(included))
	for _, d := range included {
		inPack[d.ID] = d
	}
	out := make([]Document, 0, len(docIDs))
	seen := map[string]bool{}
	for _, id := range docIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		d, ok := inPack[id]
		if !ok {
			if _, err := c.Document(industryID, id); err != nil {
				return nil, fmt.Errorf("%w: %s", err, id)
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotInPack, id)
		}
		out = append(out, d)
	}
	return out, nil
}

// Stats mirrors the counts shown on the pricing page.
type Stats struct {
	Industries     int `json:"industries"`
	TotalDocuments int `json:"totalDocuments"`
	LiteDocuments  int `json:"liteDocuments"`
	ProDocuments   int `json:"proDocuments"`
}

func (c *Catalog) Stats() Stats {
	s := Stats{Industries: len(c.industries)}
	for _, ind := range c.industries {
		s.TotalDocuments += len(ind.Documents)
		for _, d := range ind.Documents {
			if d.InLite {
				s.LiteDocuments++
			}
		}
	}
	s.ProDocuments = s.TotalDocuments - s.LiteDocuments
	return s
}

// IndustryIDs returns every industry id in sorted order.
func (c *Catalog) IndustryIDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
