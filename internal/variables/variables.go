// Package variables implements the engine's named variable store: an
// ordered, case-insensitive-indexed list of typed values with built-in
// providers, the `[name]` interpolation grammar, and a little-endian
// serialization format for persisted state.
package variables

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// Type is the variable's value type.
type Type int

const (
	// TypeNone marks a variable whose built-in initializer failed, or a
	// freshly declared slot with no value yet.
	TypeNone Type = iota
	TypeString
	TypeNumeric
	TypeVersion
)

// Flags are the per-variable bits from the data model.
type Flags struct {
	BuiltIn   bool
	Hidden    bool
	Persisted bool
}

// Initializer lazily computes a built-in variable's value on first read.
type Initializer func() (Type, string, int64, error)

// variable is one store entry. stringValue holds String/Version payloads;
// numericValue holds Numeric payloads.
type variable struct {
	name         string
	typ          Type
	stringValue  string
	numericValue int64
	flags        Flags
	init         Initializer
	initialized  bool
}

// Store is the engine's variable store. All public operations serialize
// under mu, matching the exclusive-section rule in the concurrency model.
type Store struct {
	mu   sync.Mutex
	vars []*variable // kept sorted by case-insensitive name
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// search returns the index of name (case-insensitive) and whether it was
// found, using binary search over the sorted slice. Caller must hold mu.
func (s *Store) search(name string) (int, bool) {
	key := strings.ToLower(name)
	i := sort.Search(len(s.vars), func(i int) bool {
		return strings.ToLower(s.vars[i].name) >= key
	})
	if i < len(s.vars) && strings.EqualFold(s.vars[i].name, name) {
		return i, true
	}
	return i, false
}

func (s *Store) insert(v *variable) {
	idx, found := s.search(v.name)
	if found {
		s.vars[idx] = v
		return
	}
	s.vars = append(s.vars, nil)
	copy(s.vars[idx+1:], s.vars[idx:])
	s.vars[idx] = v
}

// RegisterBuiltIn declares a lazily-initialized built-in variable. It must
// be called before any concurrent reads of name begin.
func (s *Store) RegisterBuiltIn(name string, hidden bool, init Initializer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert(&variable{
		name:  name,
		typ:   TypeNone,
		flags: Flags{BuiltIn: true, Hidden: hidden},
		init:  init,
	})
}

func (s *Store) resolve(v *variable) {
	if v.initialized || v.init == nil {
		return
	}
	v.initialized = true
	typ, str, num, err := v.init()
	if err != nil {
		v.typ = TypeNone
		return
	}
	v.typ = typ
	v.stringValue = str
	v.numericValue = num
}

// GetString returns the string/version value of name.
func (s *Store) GetString(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, found := s.search(name)
	if !found {
		return "", errkind.New(errkind.NotFound, fmt.Sprintf("variable %q not found", name))
	}
	v := s.vars[idx]
	s.resolve(v)
	if v.typ == TypeNone {
		return "", errkind.New(errkind.NotFound, fmt.Sprintf("variable %q is type none", name))
	}
	if v.typ == TypeNumeric {
		return strconv.FormatInt(v.numericValue, 10), nil
	}
	return v.stringValue, nil
}

// GetNumeric returns the int64 value of name.
func (s *Store) GetNumeric(name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, found := s.search(name)
	if !found {
		return 0, errkind.New(errkind.NotFound, fmt.Sprintf("variable %q not found", name))
	}
	v := s.vars[idx]
	s.resolve(v)
	switch v.typ {
	case TypeNumeric:
		return v.numericValue, nil
	case TypeNone:
		return 0, errkind.New(errkind.NotFound, fmt.Sprintf("variable %q is type none", name))
	default:
		n, err := strconv.ParseInt(v.stringValue, 10, 64)
		if err != nil {
			return 0, errkind.Wrap(errkind.Validation, fmt.Sprintf("variable %q is not numeric", name), err)
		}
		return n, nil
	}
}

// GetVersion returns the version-typed string value of name.
func (s *Store) GetVersion(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, found := s.search(name)
	if !found {
		return "", errkind.New(errkind.NotFound, fmt.Sprintf("variable %q not found", name))
	}
	v := s.vars[idx]
	s.resolve(v)
	if v.typ == TypeNone {
		return "", errkind.New(errkind.NotFound, fmt.Sprintf("variable %q is type none", name))
	}
	return v.stringValue, nil
}

// SetString sets a string variable. overwriteBuiltIn must be true to
// replace a built-in's value (the restore flag in the data model).
func (s *Store) SetString(name, value string, overwriteBuiltIn bool) error {
	return s.set(name, TypeString, value, 0, overwriteBuiltIn)
}

// SetNumeric sets a numeric variable.
func (s *Store) SetNumeric(name string, value int64, overwriteBuiltIn bool) error {
	return s.set(name, TypeNumeric, "", value, overwriteBuiltIn)
}

// SetVersion sets a version-typed variable.
func (s *Store) SetVersion(name, value string, overwriteBuiltIn bool) error {
	return s.set(name, TypeVersion, value, 0, overwriteBuiltIn)
}

func (s *Store) set(name string, typ Type, str string, num int64, overwriteBuiltIn bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, found := s.search(name)
	if found {
		existing := s.vars[idx]
		if existing.flags.BuiltIn && !overwriteBuiltIn {
			return errkind.New(errkind.Validation, fmt.Sprintf("variable %q is built-in and cannot be overwritten", name))
		}
		existing.typ = typ
		existing.stringValue = str
		existing.numericValue = num
		existing.initialized = true
		return nil
	}

	if len(s.vars) == math.MaxInt32 {
		return errkind.New(errkind.Validation, "variable store capacity exceeded")
	}

	s.insert(&variable{
		name:        name,
		typ:         typ,
		stringValue: str,
		numericValue: num,
		initialized: true,
	})
	return nil
}

// SetHidden marks name as hidden (its value never appears in obfuscated
// formatting or logs).
func (s *Store) SetHidden(name string, hidden bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, found := s.search(name)
	if !found {
		return errkind.New(errkind.NotFound, fmt.Sprintf("variable %q not found", name))
	}
	s.vars[idx].flags.Hidden = hidden
	return nil
}

// SetPersisted marks name as persisted (included in Serialize with
// persistOnly=true).
func (s *Store) SetPersisted(name string, persisted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, found := s.search(name)
	if !found {
		return errkind.New(errkind.NotFound, fmt.Sprintf("variable %q not found", name))
	}
	s.vars[idx].flags.Persisted = persisted
	return nil
}

// Names returns all variable names in sorted order, for diagnostics and
// tests. It does not trigger lazy initialization.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.vars))
	for i, v := range s.vars {
		names[i] = v.name
	}
	return names
}

// stringValueRaw returns the stored value for formatting, triggering lazy
// init, without the NotFound/type-none distinctions GetString makes.
// Caller must hold mu.
func (s *Store) stringValueRaw(name string) (string, bool, bool) {
	idx, found := s.search(name)
	if !found {
		return "", false, false
	}
	v := s.vars[idx]
	s.resolve(v)
	if v.typ == TypeNone {
		return "", false, false
	}
	value := v.stringValue
	if v.typ == TypeNumeric {
		value = strconv.FormatInt(v.numericValue, 10)
	}
	return value, true, v.flags.Hidden
}
