package model

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/evergreen-ci/lattice"
	"github.com/google/shlex"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// The YAML bytes are first unmarshalled into an intermediary parserMatrix.
// Its internal types define custom unmarshal hooks so that users can write
// the more convenient scalar forms where we expect lists or maps:
//
//	script: python3 -m coverage run -m unittest -b
//	env: FORCE_PYTHON_PKGS=numpy==1.12 PYTHON_PKG_URL=https://...
//	python: 3.6
//
// all parse the same as their expanded list/map/string equivalents. Once
// the intermediary form is built, it is translated into the public Matrix
// type, defaulting entry names along the way. Code outside this file never
// handles parser* types.

type parserMatrix struct {
	Language string        `yaml:"language,omitempty"`
	Sudo     bool          `yaml:"sudo,omitempty"`
	Env      *parserEnv    `yaml:"env,omitempty"`
	Matrix   parserInclude `yaml:"matrix,omitempty"`
	Timeout  int           `yaml:"timeout_secs,omitempty"`

	BeforeInstall *parserCommandSet `yaml:"before_install,omitempty"`
	Install       *parserCommandSet `yaml:"install,omitempty"`
	Script        *parserCommandSet `yaml:"script,omitempty"`
	AfterSuccess  *parserCommandSet `yaml:"after_success,omitempty"`
}

type parserInclude struct {
	Include       []parserEntry   `yaml:"include,omitempty"`
	AllowFailures []EntrySelector `yaml:"allow_failures,omitempty"`
}

type parserEntry struct {
	Name     string       `yaml:"name,omitempty"`
	OS       string       `yaml:"os,omitempty"`
	Python   parserString `yaml:"python,omitempty"`
	Language string       `yaml:"language,omitempty"`
	Env      *parserEnv   `yaml:"env,omitempty"`
}

// parserCommandSet unmarshals either a single command string or a list of
// command strings.
type parserCommandSet struct {
	SingleCommand string
	MultiCommand  []string
}

func (c *parserCommandSet) List() []string {
	if len(c.MultiCommand) > 0 {
		return c.MultiCommand
	}
	if c.SingleCommand != "" {
		return []string{c.SingleCommand}
	}
	return nil
}

func (c *parserCommandSet) UnmarshalYAML(unmarshal func(interface{}) error) error {
	err1 := unmarshal(&c.MultiCommand)
	err2 := unmarshal(&c.SingleCommand)
	if err1 == nil || err2 == nil {
		return nil
	}
	return err1
}

// UnmarshalYAML reads an EntrySelector, accepting numeric runtime
// versions the same way entries do.
func (s *EntrySelector) UnmarshalYAML(unmarshal func(interface{}) error) error {
	raw := struct {
		Name   string       `yaml:"name"`
		OS     string       `yaml:"os"`
		Python parserString `yaml:"python"`
	}{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	s.Name = raw.Name
	s.OS = raw.OS
	s.Python = string(raw.Python)
	return nil
}

// parserString accepts any scalar YAML value and stores its string form,
// so that `python: 3.6` and `python: "3.6"` parse identically.
type parserString string

func (s *parserString) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*s = ""
	case string:
		*s = parserString(v)
	case int:
		*s = parserString(strconv.Itoa(v))
	case float64:
		*s = parserString(strconv.FormatFloat(v, 'g', -1, 64))
	case bool:
		*s = parserString(strconv.FormatBool(v))
	default:
		return errors.Errorf("cannot read value of type %T as a string", raw)
	}
	return nil
}

// parserEnv unmarshals environment variables from either a mapping or a
// shell-style "KEY=VAL KEY2=VAL2" string, where values may be quoted.
type parserEnv map[string]string

func (e *parserEnv) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var asMap map[string]interface{}
	if err := unmarshal(&asMap); err == nil {
		out := map[string]string{}
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &out,
		})
		if err != nil {
			return errors.Wrap(err, "building env decoder")
		}
		if err := decoder.Decode(asMap); err != nil {
			return errors.Wrap(err, "reading env mapping")
		}
		*e = out
		return nil
	}

	var asString string
	if err := unmarshal(&asString); err != nil {
		return errors.New("env must be a mapping or a 'KEY=VAL' string")
	}
	pairs, err := shlex.Split(asString)
	if err != nil {
		return errors.Wrapf(err, "splitting env string '%s'", asString)
	}
	out := map[string]string{}
	for _, pair := range pairs {
		k, v, found := strings.Cut(pair, "=")
		if !found || k == "" {
			return errors.Errorf("env assignment '%s' is not in KEY=VAL form", pair)
		}
		out[k] = v
	}
	*e = out
	return nil
}

// LoadMatrix reads and parses the matrix configuration at path.
func LoadMatrix(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading matrix configuration '%s'", path)
	}
	m, err := ParseMatrix(data)
	return m, errors.Wrapf(err, "parsing matrix configuration '%s'", path)
}

// ParseMatrix parses matrix configuration YAML into its evaluated form.
// Unknown top-level or entry fields are fatal, since a typoed phase name
// would otherwise silently skip every one of its commands.
func ParseMatrix(data []byte) (*Matrix, error) {
	pm := parserMatrix{}
	if err := yaml.UnmarshalStrict(data, &pm); err != nil {
		return nil, errors.Wrap(err, "unmarshalling matrix from YAML")
	}
	return translateMatrix(&pm)
}

func translateMatrix(pm *parserMatrix) (*Matrix, error) {
	m := Matrix{
		Language:      pm.Language,
		Sudo:          pm.Sudo,
		Env:           map[string]string(orEmptyEnv(pm.Env)),
		AllowFailures: pm.Matrix.AllowFailures,
		BeforeInstall: pm.BeforeInstall.orNil(),
		Install:       pm.Install.orNil(),
		Script:        pm.Script.orNil(),
		AfterSuccess:  pm.AfterSuccess.orNil(),
		TimeoutSecs:   pm.Timeout,
	}

	seen := map[string]int{}
	for _, pe := range pm.Matrix.Include {
		entry := Entry{
			Name:     pe.Name,
			OS:       pe.OS,
			Python:   string(pe.Python),
			Language: pe.Language,
			Env:      map[string]string(orEmptyEnv(pe.Env)),
		}
		if entry.OS == "" {
			entry.OS = lattice.OSLinux
		}
		entry.Name = defaultEntryName(entry, seen)
		m.Include = append(m.Include, entry)
	}

	return &m, nil
}

// defaultEntryName fills in a derived name for unnamed entries and
// disambiguates derived collisions with an ordinal suffix so that every
// entry can be addressed individually. Explicit names pass through
// untouched; duplicates among them are for the validator to reject, not
// for the parser to paper over.
func defaultEntryName(e Entry, seen map[string]int) string {
	if e.Name != "" {
		seen[e.Name]++
		return e.Name
	}
	name := e.DisplayName()
	seen[name]++
	if n := seen[name]; n > 1 {
		return fmt.Sprintf("%s-%d", name, n)
	}
	return name
}

func (c *parserCommandSet) orNil() []string {
	if c == nil {
		return nil
	}
	return c.List()
}

func orEmptyEnv(e *parserEnv) parserEnv {
	if e == nil {
		return parserEnv{}
	}
	return *e
}

// marshalMatrix mirrors the file format for serialization. Marshalling
// always writes the expanded list and mapping forms; the scalar shortcuts
// are accepted on input only.
type marshalMatrix struct {
	Language string            `yaml:"language,omitempty"`
	Sudo     bool              `yaml:"sudo"`
	Env      map[string]string `yaml:"env,omitempty"`
	Matrix   marshalInclude    `yaml:"matrix,omitempty"`

	BeforeInstall []string `yaml:"before_install,omitempty"`
	Install       []string `yaml:"install,omitempty"`
	Script        []string `yaml:"script,omitempty"`
	AfterSuccess  []string `yaml:"after_success,omitempty"`

	Timeout int `yaml:"timeout_secs,omitempty"`
}

type marshalInclude struct {
	Include       []marshalEntry  `yaml:"include,omitempty"`
	AllowFailures []EntrySelector `yaml:"allow_failures,omitempty"`
}

type marshalEntry struct {
	Name     string            `yaml:"name,omitempty"`
	OS       string            `yaml:"os,omitempty"`
	Python   string            `yaml:"python,omitempty"`
	Language string            `yaml:"language,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
}

// Marshal serializes the matrix back to its file format. Parsing the
// result reproduces the same ordered entries and phase command sequences.
func (m *Matrix) Marshal() ([]byte, error) {
	mm := marshalMatrix{
		Language: m.Language,
		Sudo:     m.Sudo,
		Env:      emptyAsNil(m.Env),
		Matrix: marshalInclude{
			AllowFailures: m.AllowFailures,
		},
		BeforeInstall: m.BeforeInstall,
		Install:       m.Install,
		Script:        m.Script,
		AfterSuccess:  m.AfterSuccess,
		Timeout:       m.TimeoutSecs,
	}
	for _, e := range m.Include {
		mm.Matrix.Include = append(mm.Matrix.Include, marshalEntry{
			Name:     e.Name,
			OS:       e.OS,
			Python:   e.Python,
			Language: e.Language,
			Env:      emptyAsNil(e.Env),
		})
	}

	out, err := yaml.Marshal(mm)
	return out, errors.Wrap(err, "marshalling matrix to YAML")
}

func emptyAsNil(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	return env
}
