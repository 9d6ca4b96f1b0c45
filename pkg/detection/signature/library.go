package signature

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const component = "signature library"

//go:embed default_signatures.yaml
var defaultLibrary []byte

//go:embed signatures.schema.json
var librarySchema []byte

var scannerKinds = map[finding.Kind]struct{}{
	finding.KindSQLInjection:        {},
	finding.KindCommandInjection:    {},
	finding.KindScriptInjection:     {},
	finding.KindEncodingObfuscation: {},
}

type Rule struct {
	ID      string
	Pattern *regexp.Regexp
}

// Family groups rules of one attack family under a single severity.
type Family struct {
	Name      string
	Kind      finding.Kind
	Severity  finding.Severity
	Technique string
	Rules     []Rule
}

type Heuristics struct {
	SpecialRunLength int
	EscapeRunLength  int
	LengthLimits     map[string]int
}

// Library is immutable once loaded and safe to share between goroutines.
type Library struct {
	Version    int
	Families   []Family
	Whitelist  []string
	Heuristics Heuristics
	byName     map[string]int
}

type document struct {
	Version    int              `yaml:"version"`
	Whitelist  []string         `yaml:"whitelist"`
	Heuristics heuristicsDoc    `yaml:"heuristics"`
	Families   []familyDocument `yaml:"families"`
}

type heuristicsDoc struct {
	SpecialRunLength int            `yaml:"special_run_length"`
	EscapeRunLength  int            `yaml:"escape_run_length"`
	LengthLimits     map[string]int `yaml:"length_limits"`
}

type familyDocument struct {
	Name      string         `yaml:"name"`
	Kind      string         `yaml:"kind"`
	Severity  string         `yaml:"severity"`
	Technique string         `yaml:"technique"`
	Rules     []ruleDocument `yaml:"rules"`
}

type ruleDocument struct {
	ID      string `yaml:"id"`
	Pattern string `yaml:"pattern"`
}

// Default returns the library embedded in the binary.
func Default() (*Library, error) {
	return Parse(defaultLibrary)
}

// Load reads a library file, falling back to the embedded one when path is
// empty. Any problem is a configuration error.
func Load(path string) (*Library, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewConfigurationError(component, fmt.Sprintf("cannot read %s", path), err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Library, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, domain.NewConfigurationError(component, "library is empty", nil)
	}
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, domain.NewConfigurationError(component, "malformed yaml", err)
	}
	return compile(doc)
}

func validateSchema(data []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return domain.NewConfigurationError(component, "malformed yaml", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return domain.NewConfigurationError(component, "library is not representable as json", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(librarySchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return domain.NewConfigurationError(component, "schema validation failed", err)
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return domain.NewConfigurationError(component, strings.Join(reasons, "; "), nil)
	}
	return nil
}

func compile(doc document) (*Library, error) {
	lib := &Library{
		Version:   doc.Version,
		Families:  make([]Family, 0, len(doc.Families)),
		Whitelist: make([]string, 0, len(doc.Whitelist)),
		Heuristics: Heuristics{
			SpecialRunLength: doc.Heuristics.SpecialRunLength,
			EscapeRunLength:  doc.Heuristics.EscapeRunLength,
			LengthLimits:     make(map[string]int, len(doc.Heuristics.LengthLimits)),
		},
		byName: make(map[string]int, len(doc.Families)),
	}
	if lib.Heuristics.SpecialRunLength == 0 {
		lib.Heuristics.SpecialRunLength = 5
	}
	if lib.Heuristics.EscapeRunLength == 0 {
		lib.Heuristics.EscapeRunLength = 3
	}
	for field, limit := range doc.Heuristics.LengthLimits {
		lib.Heuristics.LengthLimits[strings.ToLower(field)] = limit
	}
	for _, phrase := range doc.Whitelist {
		lib.Whitelist = append(lib.Whitelist, strings.ToLower(phrase))
	}

	ruleIDs := make(map[string]struct{})
	for _, fam := range doc.Families {
		if _, dup := lib.byName[fam.Name]; dup {
			return nil, domain.NewConfigurationError(component, fmt.Sprintf("duplicate family %q", fam.Name), nil)
		}
		severity, err := finding.ParseSeverity(fam.Severity)
		if err != nil {
			return nil, domain.NewConfigurationError(component, fmt.Sprintf("family %q has no valid severity", fam.Name), err)
		}
		kind := finding.Kind(fam.Kind)
		if _, ok := scannerKinds[kind]; !ok {
			return nil, domain.NewConfigurationError(component, fmt.Sprintf("family %q has unsupported kind %q", fam.Name, fam.Kind), nil)
		}

		compiled := Family{
			Name:      fam.Name,
			Kind:      kind,
			Severity:  severity,
			Technique: fam.Technique,
			Rules:     make([]Rule, 0, len(fam.Rules)),
		}
		for _, r := range fam.Rules {
			if _, dup := ruleIDs[r.ID]; dup {
				return nil, domain.NewConfigurationError(component, fmt.Sprintf("duplicate rule id %q", r.ID), nil)
			}
			ruleIDs[r.ID] = struct{}{}
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, domain.NewConfigurationError(component, fmt.Sprintf("rule %q does not compile", r.ID), err)
			}
			compiled.Rules = append(compiled.Rules, Rule{ID: r.ID, Pattern: re})
		}

		lib.byName[fam.Name] = len(lib.Families)
		lib.Families = append(lib.Families, compiled)
	}
	return lib, nil
}

func (l *Library) Family(name string) (Family, bool) {
	idx, ok := l.byName[name]
	if !ok {
		return Family{}, false
	}
	return l.Families[idx], true
}

// Whitelisted reports a case-insensitive substring hit against the whitelist.
func (l *Library) Whitelisted(input string) bool {
	if len(l.Whitelist) == 0 {
		return false
	}
	lowered := strings.ToLower(input)
	for _, phrase := range l.Whitelist {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
