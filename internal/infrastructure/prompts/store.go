package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

// Template names.
const (
	Enrichment    = ports.PromptEnrichment
	PDFExtraction = ports.PromptPDFExtraction
	ImageContext  = ports.PromptImageContext
	AudioContext  = ports.PromptAudioContext
	VideoContext  = ports.PromptVideoContext
	MetaJSON      = ports.PromptMetaJSON
	RAGQA         = ports.PromptRAGQA
	RAGChat       = ports.PromptRAGChat
	Compare       = ports.PromptCompare
	Identity      = ports.PromptIdentity
	IdentityNote  = ports.PromptIdentityNote
	Resume        = ports.PromptResume
	EntityAuto    = ports.PromptEntityAuto
	EntityFields  = ports.PromptEntityFields
	SummaryAuto   = ports.PromptSummaryAuto
	FormFill      = ports.PromptFormFill
	ImageDocument = ports.PromptImageDocument
)

//go:embed templates.yaml
var defaultTemplates []byte

type file struct {
	Version   int               `yaml:"version"`
	Templates map[string]string `yaml:"templates"`
}

// Store holds immutable prompt templates keyed by name.
type Store struct {
	templates map[string]string
}

// Default returns the embedded template set.
func Default() *Store {
	store, err := Parse(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt templates: %v", err))
	}
	return store
}

func Parse(data []byte) (*Store, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}
	if len(f.Templates) == 0 {
		return nil, fmt.Errorf("parse prompt templates: no templates defined")
	}
	out := make(map[string]string, len(f.Templates))
	for name, body := range f.Templates {
		out[strings.TrimSpace(name)] = strings.TrimRight(body, "\n")
	}
	return &Store{templates: out}, nil
}

// Load returns the embedded templates overlaid with the ones in path.
// An empty path yields the defaults.
func Load(path string) (*Store, error) {
	store := Default()
	if strings.TrimSpace(path) == "" {
		return store, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt overrides: %w", err)
	}
	overrides, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	for name, body := range overrides.templates {
		store.templates[name] = body
	}
	return store, nil
}

func (s *Store) Template(name string) string {
	return s.templates[name]
}

// Render substitutes {{KEY}} tokens in a single pass, so substituted values
// are never rescanned.
func (s *Store) Render(name string, vars map[string]string) string {
	tpl := s.templates[name]
	if len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

func (s *Store) Names() []string {
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
