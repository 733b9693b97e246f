package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"accented", "Médicos", "medicos"},
		{"upper", "MEDICOS", "medicos"},
		{"padded", " medicos ", "medicos"},
		{"upper accented trailing space", "MÉDICOS ", "medicos"},
		{"tilde", "Peñasco", "penasco"},
		{"diaeresis", "Güemes", "guemes"},
		{"inner spaces kept", "  San  Juan ", "san  juan"},
		{"symbols dropped", "Colonia № 5 ✓", "colonia  5"},
		{"nbsp dropped", "\u00a0sm\u00a0", "sm"},
		{"empty", "", ""},
		{"only accents", "\u0301\u0301", ""},
		{"tab and newline", "\tSM\n", "sm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.in))
		})
	}
}

func TestKey_EquivalentSpellings(t *testing.T) {
	assert.Equal(t, Key("Médicos"), Key("MEDICOS"))
	assert.Equal(t, Key("MEDICOS"), Key(" medicos "))
	assert.Equal(t, "medicos", Key(" medicos "))
}

func TestKey_Idempotent(t *testing.T) {
	inputs := []string{
		"Médicos", "MÉDICOS ", "  Álvaro Obregón", "Ñuñoa", "Zürich-Süd",
		"Ciudad de México", "sm", "S.M.", "", "   ", "colonia 12 (norte)",
		"\xff\xfeBAD",
	}
	for _, in := range inputs {
		once := Key(in)
		assert.Equal(t, once, Key(once), "Key not idempotent for %q", in)
	}
}

func TestKey_InvalidUTF8FallsBack(t *testing.T) {
	// Latin-1 encoded "ÉL " is not valid UTF-8.
	in := "\xc9L "
	assert.NotPanics(t, func() { Key(in) })
	assert.Equal(t, "\xc9l", Key(in))
}

func TestValue_PassThrough(t *testing.T) {
	assert.Nil(t, Value(nil))
	assert.Equal(t, 42, Value(42))
	assert.Equal(t, 3.5, Value(3.5))
	assert.Equal(t, true, Value(true))

	m := map[string]any{"a": 1}
	assert.Equal(t, m, Value(m))
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "medicos", Value("Médicos"))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "San Juan", Title("SAN JUAN"))
	assert.Equal(t, "Centro", Title("centro"))
	assert.Equal(t, "Álvaro Obregón", Title("álvaro obregón"))
	assert.Equal(t, "", Title("  "))
}
