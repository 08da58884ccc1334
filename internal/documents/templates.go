package documents

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
)

// DefaultLanguage is used when a request names no language.
const DefaultLanguage = "English"

const manifestFile = "manifest.json"

//go:embed templates
var embedded embed.FS

const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "templates"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "templates": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["document_type", "jurisdiction", "language", "file"],
        "additionalProperties": false,
        "properties": {
          "document_type": {"type": "string", "pattern": "^[A-Z_]+$"},
          "jurisdiction": {"type": "string", "pattern": "^[A-Z_]+$"},
          "language": {"type": "string", "minLength": 1},
          "file": {"type": "string", "pattern": "\\.md$"}
        }
      }
    }
  }
}`

type manifest struct {
	Version   int             `json:"version"`
	Templates []manifestEntry `json:"templates"`
}

type manifestEntry struct {
	DocumentType string `json:"document_type"`
	Jurisdiction string `json:"jurisdiction"`
	Language     string `json:"language"`
	File         string `json:"file"`
}

// Template is a Markdown body with {{placeholder}} markers.
type Template struct {
	DocumentType enums.DocumentType
	Jurisdiction enums.Jurisdiction
	Language     string
	Body         string
}

// Key identifies the template in stored documents, e.g. "NDA/GLOBAL/English".
func (t Template) Key() string {
	return fmt.Sprintf("%s/%s/%s", t.DocumentType, t.Jurisdiction, t.Language)
}

type templateKey struct {
	docType      enums.DocumentType
	jurisdiction enums.Jurisdiction
	language     string
}

// Store indexes templates by (document type, jurisdiction, language).
type Store struct {
	version   int
	templates map[templateKey]Template
}

// LoadStore reads manifest.json from fsys, validates it and loads every file it
// lists.
func LoadStore(fsys fs.FS) (*Store, error) {
	raw, err := fs.ReadFile(fsys, manifestFile)
	if err != nil {
		return nil, fmt.Errorf("read template manifest: %w", err)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(manifestSchema), gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validate template manifest: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("invalid template manifest: %s", strings.Join(problems, "; "))
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode template manifest: %w", err)
	}

	store := &Store{version: m.Version, templates: make(map[templateKey]Template, len(m.Templates))}
	for _, entry := range m.Templates {
		docType, err := enums.ParseDocumentType(entry.DocumentType)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", entry.File, err)
		}
		jurisdiction, err := enums.ParseJurisdiction(entry.Jurisdiction)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", entry.File, err)
		}
		body, err := fs.ReadFile(fsys, path.Clean(entry.File))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", entry.File, err)
		}
		tmpl := Template{
			DocumentType: docType,
			Jurisdiction: jurisdiction,
			Language:     strings.TrimSpace(entry.Language),
			Body:         string(body),
		}
		key := keyFor(docType, jurisdiction, tmpl.Language)
		if _, dup := store.templates[key]; dup {
			return nil, fmt.Errorf("duplicate template %s", tmpl.Key())
		}
		store.templates[key] = tmpl
	}
	return store, nil
}

// DefaultStore loads the embedded templates and checks that every document
// type has a GLOBAL English template.
func DefaultStore() (*Store, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	store, err := LoadStore(sub)
	if err != nil {
		return nil, err
	}
	if missing := store.MissingBaseTemplates(); len(missing) > 0 {
		return nil, fmt.Errorf("missing GLOBAL/%s templates for %v", DefaultLanguage, missing)
	}
	return store, nil
}

// MissingBaseTemplates lists document types without a GLOBAL English template.
func (s *Store) MissingBaseTemplates() []enums.DocumentType {
	var missing []enums.DocumentType
	for _, docType := range enums.DocumentTypes() {
		if _, ok := s.templates[keyFor(docType, enums.JurisdictionGlobal, DefaultLanguage)]; !ok {
			missing = append(missing, docType)
		}
	}
	return missing
}

// Version is the manifest version.
func (s *Store) Version() int {
	return s.version
}

// Len reports how many templates are loaded.
func (s *Store) Len() int {
	return len(s.templates)
}

// Resolve finds the most specific template for the request. It tries the exact
// key, then GLOBAL in the requested language, then GLOBAL English.
func (s *Store) Resolve(docType enums.DocumentType, jurisdiction enums.Jurisdiction, language string) (Template, error) {
	language = normalizeLanguage(language)
	if jurisdiction == "" {
		jurisdiction = enums.JurisdictionGlobal
	}
	candidates := []templateKey{
		keyFor(docType, jurisdiction, language),
		keyFor(docType, enums.JurisdictionGlobal, language),
		keyFor(docType, enums.JurisdictionGlobal, DefaultLanguage),
	}
	for _, key := range candidates {
		if tmpl, ok := s.templates[key]; ok {
			return tmpl, nil
		}
	}
	return Template{}, pkgerrors.New(pkgerrors.CodeUnsupportedCombination,
		fmt.Sprintf("no template for %s in %s (%s)", docType, jurisdiction, language))
}

func keyFor(docType enums.DocumentType, jurisdiction enums.Jurisdiction, language string) templateKey {
	return templateKey{docType: docType, jurisdiction: jurisdiction, language: strings.ToLower(normalizeLanguage(language))}
}

func normalizeLanguage(language string) string {
	trimmed := strings.TrimSpace(language)
	if trimmed == "" {
		return DefaultLanguage
	}
	return trimmed
}
