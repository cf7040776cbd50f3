// Package propstore implements the property-store field catalogue from
// spec §3/§4.C: a fixed set of About/Config fields, each with read-only,
// announced, localized, and private flags, backed by NVRAM.
package propstore

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/text/language"

	"github.com/alljoynjs/ajcore/internal/corerr"
	"github.com/alljoynjs/ajcore/internal/nvram"
)

// Key identifies one catalogue entry.
type Key int

const (
	AppName Key = iota
	DeviceName
	AppId
	DeviceId
	DefaultLanguage
	Manufacturer
	ModelNumber
	SoftwareVersion
	Description
	SupportedLanguages
	numKeys
)

func (k Key) String() string {
	return catalogue[k].name
}

// Flags describe how a field behaves, per spec §3.
type Flags struct {
	ReadOnly  bool
	Announced bool
	Localized bool
	Private   bool
}

type fieldDef struct {
	name    string
	flags   Flags
	initial string
}

var catalogue = [numKeys]fieldDef{
	AppName:            {name: "AppName", flags: Flags{Announced: true}},
	DeviceName:         {name: "DeviceName", flags: Flags{Announced: true, Localized: true}},
	AppId:              {name: "AppId", flags: Flags{ReadOnly: true, Announced: true}},
	DeviceId:           {name: "DeviceId", flags: Flags{ReadOnly: true, Announced: true}},
	DefaultLanguage:    {name: "DefaultLanguage", flags: Flags{Announced: true}},
	Manufacturer:       {name: "Manufacturer", flags: Flags{Announced: true, Localized: true}},
	ModelNumber:        {name: "ModelNumber", flags: Flags{Announced: true}},
	SoftwareVersion:    {name: "SoftwareVersion", flags: Flags{Announced: true}},
	Description:        {name: "Description", flags: Flags{Localized: true}},
	SupportedLanguages: {name: "SupportedLanguages", flags: Flags{ReadOnly: true, Announced: true}},
}

// Filter selects which fields read_all returns, per spec §4.C.
type Filter int

const (
	FilterAbout Filter = iota
	FilterConfig
	FilterAnnounce
)

// Store is the property store, backed by an NVRAM handle.
type Store struct {
	nv        *nvram.Store
	busGUID   string
	languages []language.Tag // registered language table, index 0 is default
}

// New builds a Store over nv. languages is the runtime's configured BCP-47
// tag list (spec §4.C: "the registered language table").
func New(nv *nvram.Store, busGUID string, languages []string) (*Store, error) {
	tags := make([]language.Tag, 0, len(languages))
	for _, l := range languages {
		t, err := language.Parse(l)
		if err != nil {
			return nil, corerr.Wrap(corerr.KindInvalid, "propstore.New", err)
		}
		tags = append(tags, t)
	}
	if len(tags) == 0 {
		tags = []language.Tag{language.English}
	}
	return &Store{nv: nv, busGUID: busGUID, languages: tags}, nil
}

func nvKey(k Key) string { return "prop." + k.String() }

func nvLangKey(k Key) string { return "prop.lang." + k.String() }

// LangIndex resolves a requested BCP-47 tag to a registered language index,
// matching against the runtime's language table rather than bare string
// equality, so "en-US" resolves against a table that only registers "en".
func (s *Store) LangIndex(tag string) int {
	want, err := language.Parse(tag)
	if err != nil {
		return 0
	}
	matcher := language.NewMatcher(s.languages)
	_, idx, _ := matcher.Match(want)
	return idx
}

// Get returns the current value of field, using its default language.
func (s *Store) Get(key Key) string {
	return s.GetForLang(key, 0)
}

// GetForLang returns field's value for the language at langIdx. Non-
// localized fields ignore langIdx.
func (s *Store) GetForLang(key Key, langIdx int) string {
	def := catalogue[key]

	if key == AppId || key == DeviceId {
		return s.busGUID
	}
	if key == SupportedLanguages {
		return s.supportedLanguagesCSV()
	}

	if !def.flags.Localized {
		if v, err := s.nv.Read(nvKey(key)); err == nil {
			return string(v)
		}
		if key == DeviceName {
			return s.defaultDeviceName()
		}
		return def.initial
	}

	m := s.readLocalizedMap(key)
	langTag := s.languageTagAt(langIdx)
	if v, ok := m[langTag]; ok {
		return v
	}
	if key == DeviceName {
		return s.defaultDeviceName()
	}
	return def.initial
}

func (s *Store) languageTagAt(idx int) string {
	if idx < 0 || idx >= len(s.languages) {
		idx = 0
	}
	return s.languages[idx].String()
}

func (s *Store) defaultDeviceName() string {
	guid := s.busGUID
	if len(guid) > 8 {
		guid = guid[len(guid)-8:]
	}
	return fmt.Sprintf("%s %s %s", s.Get(Manufacturer), s.Get(ModelNumber), guid)
}

func (s *Store) supportedLanguagesCSV() string {
	tags := make([]string, len(s.languages))
	for i, t := range s.languages {
		tags[i] = t.String()
	}
	return strings.Join(tags, ",")
}

// Set writes value to a field; a localized field is written for language
// index 0 via SetForLang. Writes that would set the same value are
// skipped, per spec §4.C.
func (s *Store) Set(key Key, value string) error {
	def := catalogue[key]
	if def.flags.ReadOnly {
		return corerr.New(corerr.KindInvalid, "propstore.Set")
	}
	if def.flags.Localized {
		return s.SetForLang(key, 0, value)
	}
	if s.Get(key) == value {
		return nil
	}
	return s.nv.Write(nvKey(key), []byte(value))
}

// SetForLang reads the current serialized language map, updates the entry
// for langIdx, and writes the whole map back, per spec §4.C.
func (s *Store) SetForLang(key Key, langIdx int, value string) error {
	def := catalogue[key]
	if def.flags.ReadOnly {
		return corerr.New(corerr.KindInvalid, "propstore.SetForLang")
	}
	m := s.readLocalizedMap(key)
	tag := s.languageTagAt(langIdx)
	if m[tag] == value {
		return nil
	}
	m[tag] = value
	return s.writeLocalizedMap(key, m)
}

func (s *Store) readLocalizedMap(key Key) map[string]string {
	m := map[string]string{}
	raw, err := s.nv.Read(nvLangKey(key))
	if err != nil || len(raw) == 0 {
		return m
	}
	if err := cbor.Unmarshal(raw, &m); err != nil {
		return map[string]string{}
	}
	return m
}

func (s *Store) writeLocalizedMap(key Key, m map[string]string) error {
	raw, err := cbor.Marshal(m)
	if err != nil {
		return corerr.Wrap(corerr.KindInvalid, "propstore.writeLocalizedMap", err)
	}
	return s.nv.Write(nvLangKey(key), raw)
}

// Reset restores key to its catalogue default by deleting its NVRAM entry.
func (s *Store) Reset(key Key) error {
	def := catalogue[key]
	if def.flags.Localized {
		return s.nv.Delete(nvLangKey(key))
	}
	return s.nv.Delete(nvKey(key))
}

// ResetAll restores every field to its default.
func (s *Store) ResetAll() error {
	for k := Key(0); k < numKeys; k++ {
		if err := s.Reset(k); err != nil {
			return err
		}
	}
	return nil
}

// ReadAll returns the field set for the given filter/language, used by the
// About property getter and the Config interface, per spec §4.C.
func (s *Store) ReadAll(filter Filter, langIdx int) map[string]string {
	out := map[string]string{}
	for k := Key(0); k < numKeys; k++ {
		def := catalogue[k]
		if def.flags.Private {
			continue
		}
		switch filter {
		case FilterAbout, FilterAnnounce:
			if !def.flags.Announced {
				continue
			}
		case FilterConfig:
			// Config exposes everything non-private, read-only or not.
		}
		if k == SupportedLanguages && filter != FilterAbout {
			continue
		}
		out[def.name] = s.GetForLang(k, langIdx)
	}
	return out
}
