package bytecode

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Template families known to the scanner.
const (
	TemplateMorphoChainlinkOracleV1  = "morpho-chainlink-oracle-v1"
	TemplateMorphoChainlinkOracleV2  = "morpho-chainlink-oracle-v2"
	TemplatePendleLinearDiscountFeed = "pendle-linear-discount-feed"
)

// ErrTemplatesOverlap is returned when two templates that must be disjoint
// match each other's canonical bytecode.
var ErrTemplatesOverlap = errors.New("templates overlap")

//go:embed templates.json
var embeddedTemplates []byte

// Template is a named template family with its mask.
type Template struct {
	ID   string
	Mask Mask

	// Normalize selects IsNormalizedMatch instead of IsMatch.
	Normalize bool
}

// Matches applies the template's matching technique to deployed bytecode.
func (t Template) Matches(deployed string) bool {
	if t.Normalize {
		return IsNormalizedMatch(deployed, t.Mask)
	}
	return IsMatch(deployed, t.Mask)
}

// templateJSON is the on-disk form produced by cmd/generate-mask.
type templateJSON struct {
	ID        string `json:"id"`
	Normalize bool   `json:"normalize,omitempty"`
	Fill      string `json:"fill,omitempty"`
	Mask      []int  `json:"mask"`
	Common    string `json:"common"`
	Source    string `json:"source,omitempty"`
}

type templateFile struct {
	Version   int            `json:"version"`
	Templates []templateJSON `json:"templates"`
}

// MarshalTemplate renders t in the on-disk JSON form.
func MarshalTemplate(t Template, source string) ([]byte, error) {
	tj := templateJSON{
		ID:        t.ID,
		Normalize: t.Normalize,
		Mask:      t.Mask.Offsets,
		Common:    t.Mask.Common,
		Source:    source,
	}
	if t.Mask.Fill != 0 {
		tj.Fill = fmt.Sprintf("%02x", t.Mask.Fill)
	}
	if tj.Mask == nil {
		tj.Mask = []int{}
	}
	return json.MarshalIndent(tj, "", "  ")
}

// TemplateSet is an immutable collection of templates keyed by ID.
type TemplateSet struct {
	templates map[string]Template
}

// NewTemplateSet validates templates and indexes them. The V1 and V2 Morpho
// templates must not match each other's canonical bytecode.
func NewTemplateSet(templates ...Template) (*TemplateSet, error) {
	set := &TemplateSet{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		if t.ID == "" {
			return nil, fmt.Errorf("template id must not be empty")
		}
		if _, dup := set.templates[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template %q", t.ID)
		}
		t.Mask = t.Mask.sorted()
		set.templates[t.ID] = t
	}

	v1, hasV1 := set.templates[TemplateMorphoChainlinkOracleV1]
	v2, hasV2 := set.templates[TemplateMorphoChainlinkOracleV2]
	if hasV1 && hasV2 && v1.Mask.IsSet() && v2.Mask.IsSet() {
		if v2.Matches(v1.Mask.Common) || v1.Matches(v2.Mask.Common) {
			return nil, fmt.Errorf("%s and %s: %w", v1.ID, v2.ID, ErrTemplatesOverlap)
		}
	}

	return set, nil
}

// LoadTemplates parses a template document.
func LoadTemplates(r io.Reader) (*TemplateSet, error) {
	var doc templateFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding templates: %w", err)
	}

	templates := make([]Template, 0, len(doc.Templates))
	for _, tj := range doc.Templates {
		t, err := tj.toTemplate()
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", tj.ID, err)
		}
		templates = append(templates, t)
	}
	return NewTemplateSet(templates...)
}

// LoadTemplateFile parses the template document at path.
func LoadTemplateFile(path string) (*TemplateSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening templates: %w", err)
	}
	defer f.Close()
	return LoadTemplates(f)
}

// DefaultTemplates returns the templates compiled into the binary.
func DefaultTemplates() (*TemplateSet, error) {
	return LoadTemplates(bytes.NewReader(embeddedTemplates))
}

func (tj templateJSON) toTemplate() (Template, error) {
	var fill byte
	if tj.Fill != "" {
		v, err := strconv.ParseUint(strip0x(tj.Fill), 16, 8)
		if err != nil {
			return Template{}, fmt.Errorf("invalid fill %q: %w", tj.Fill, err)
		}
		fill = byte(v)
	}
	common := strings.ToLower(tj.Common)
	if common != "" && !strings.HasPrefix(common, "0x") {
		return Template{}, fmt.Errorf("common bytecode must be 0x-prefixed")
	}
	return Template{
		ID:        tj.ID,
		Normalize: tj.Normalize,
		Mask: Mask{
			Offsets: tj.Mask,
			Common:  common,
			Fill:    fill,
		},
	}, nil
}

// Get returns the template with the given ID.
func (s *TemplateSet) Get(id string) (Template, bool) {
	t, ok := s.templates[id]
	return t, ok
}

// Match reports whether deployed matches template id. Unknown IDs never match.
func (s *TemplateSet) Match(id, deployed string) bool {
	t, ok := s.templates[id]
	if !ok {
		return false
	}
	return t.Matches(deployed)
}

var knownTemplates = []string{TemplateMorphoChainlinkOracleV1, TemplateMorphoChainlinkOracleV2, TemplatePendleLinearDiscountFeed}

// Configured returns the IDs of templates that have canonical bytecode.
func (s *TemplateSet) Configured() []string {
	return s.filter(true)
}

// Unconfigured returns the known template IDs without canonical bytecode.
// Those templates never match, so their families are never fingerprinted.
func (s *TemplateSet) Unconfigured() []string {
	return s.filter(false)
}

func (s *TemplateSet) filter(configured bool) []string {
	var ids []string
	for _, id := range knownTemplates {
		t, ok := s.templates[id]
		if (ok && t.Mask.IsSet()) == configured {
			ids = append(ids, id)
		}
	}
	return ids
}
