package variables

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatString_EscapeAndMissing(t *testing.T) {
	s := New()
	require.NoError(t, s.SetString("hidden", "secret", false))
	require.NoError(t, s.SetHidden("hidden", true))

	require.Equal(t, "[", s.FormatString(`[\[]`))
	require.Equal(t, "]", s.FormatString(`[\]]`))
	require.Equal(t, "unterminated [", s.FormatString("unterminated ["))
	require.Equal(t, "[]", s.FormatString("[]"))
	require.Equal(t, "", s.FormatString("[missing]"))
	require.Equal(t, "*****", s.FormatStringObfuscated("[hidden]"))
	require.Equal(t, "secret", s.FormatString("[hidden]"))
}

func TestEscapeString_RoundTrips(t *testing.T) {
	s := New()
	literal := "a[b]c"
	require.NoError(t, s.SetString("x", literal, false))
	escaped := EscapeString(literal)
	require.Equal(t, literal, s.FormatString(escaped))
}

func TestVariableOrdering(t *testing.T) {
	s := New()
	names := []string{"Zeta", "alpha", "Beta", "gamma", "ALPHA2"}
	for _, n := range names {
		require.NoError(t, s.SetString(n, "v", false))
	}

	got := s.Names()
	want := append([]string{}, got...)
	sort.Slice(want, func(i, j int) bool {
		return strings.ToLower(want[i]) < strings.ToLower(want[j])
	})
	require.Equal(t, want, got)

	seen := map[string]bool{}
	for _, n := range got {
		key := strings.ToLower(n)
		require.False(t, seen[key], "duplicate variable name %q", n)
		seen[key] = true
	}
}

func TestSerializeDeserialize_NonPersisted(t *testing.T) {
	s := New()
	require.NoError(t, s.SetString("a", "one", false))
	require.NoError(t, s.SetNumeric("b", 42, false))
	require.NoError(t, s.SetVersion("c", "1.2.3", false))

	data, err := s.Serialize(false)
	require.NoError(t, err)

	restored := New()
	require.NoError(t, restored.Deserialize(data))

	av, err := restored.GetString("a")
	require.NoError(t, err)
	require.Equal(t, "one", av)

	bv, err := restored.GetNumeric("b")
	require.NoError(t, err)
	require.Equal(t, int64(42), bv)

	cv, err := restored.GetVersion("c")
	require.NoError(t, err)
	require.Equal(t, "1.2.3", cv)
}

func TestSerialize_PersistOnlyFiltersNonPersisted(t *testing.T) {
	s := New()
	require.NoError(t, s.SetString("kept", "yes", false))
	require.NoError(t, s.SetPersisted("kept", true))
	require.NoError(t, s.SetString("dropped", "no", false))

	data, err := s.Serialize(true)
	require.NoError(t, err)

	restored := New()
	require.NoError(t, restored.Deserialize(data))

	_, err = restored.GetString("kept")
	require.NoError(t, err)

	_, err = restored.GetString("dropped")
	require.Error(t, err)
}

func TestSetBuiltIn_RequiresOverride(t *testing.T) {
	s := New()
	s.RegisterBuiltIn("Built", false, func() (Type, string, int64, error) {
		return TypeString, "orig", 0, nil
	})

	err := s.SetString("Built", "new", false)
	require.Error(t, err)

	require.NoError(t, s.SetString("Built", "new", true))
	v, err := s.GetString("Built")
	require.NoError(t, err)
	require.Equal(t, "new", v)
}

func TestBuiltIns_NeverSerialized(t *testing.T) {
	s := New()
	s.RegisterBuiltIn("Built", false, func() (Type, string, int64, error) {
		return TypeString, "orig", 0, nil
	})
	require.NoError(t, s.SetString("normal", "v", false))

	data, err := s.Serialize(false)
	require.NoError(t, err)

	restored := New()
	restored.RegisterBuiltIn("Built", false, func() (Type, string, int64, error) {
		return TypeString, "fresh", 0, nil
	})
	require.NoError(t, restored.Deserialize(data))

	v, err := restored.GetString("Built")
	require.NoError(t, err)
	require.Equal(t, "fresh", v, "built-in must survive deserialize untouched")
}
