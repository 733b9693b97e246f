package incident

import (
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/response-map/internal/tabular"
	"github.com/sells-group/response-map/internal/textnorm"
)

// ColumnMapping names the table header for each semantic role, plus the
// boundary property holding the neighborhood name.
type ColumnMapping struct {
	Latitude     string `yaml:"latitude"`
	Longitude    string `yaml:"longitude"`
	Neighborhood string `yaml:"neighborhood"`
	Date         string `yaml:"date"`
	Category     string `yaml:"category"`
	NameField    string `yaml:"name_field,omitempty"`
}

// roles pairs role names with mapping values in a fixed order.
func (m ColumnMapping) roles() [][2]string {
	return [][2]string{
		{"latitude", m.Latitude},
		{"longitude", m.Longitude},
		{"neighborhood", m.Neighborhood},
		{"date", m.Date},
		{"category", m.Category},
	}
}

// Validate reports unset roles.
func (m ColumnMapping) Validate() error {
	var missing []string
	for _, r := range m.roles() {
		if strings.TrimSpace(r[1]) == "" {
			missing = append(missing, r[0])
		}
	}
	if len(missing) > 0 {
		return eris.Wrapf(ErrSchema, "incident: mapping has no column for %s", strings.Join(missing, ", "))
	}
	return nil
}

// Merge returns m with every empty role filled from other.
func (m ColumnMapping) Merge(other ColumnMapping) ColumnMapping {
	pick := func(a, b string) string {
		if strings.TrimSpace(a) != "" {
			return a
		}
		return b
	}
	return ColumnMapping{
		Latitude:     pick(m.Latitude, other.Latitude),
		Longitude:    pick(m.Longitude, other.Longitude),
		Neighborhood: pick(m.Neighborhood, other.Neighborhood),
		Date:         pick(m.Date, other.Date),
		Category:     pick(m.Category, other.Category),
		NameField:    pick(m.NameField, other.NameField),
	}
}

// resolve finds every role in header. An exact match wins over a match on
// canonical keys.
func (m ColumnMapping) resolve(t *tabular.Table) (columns, error) {
	if err := m.Validate(); err != nil {
		return columns{}, err
	}

	canon := make(map[string]int, len(t.Header))
	for i := len(t.Header) - 1; i >= 0; i-- {
		canon[textnorm.Key(t.Header[i])] = i
	}

	idx := make([]int, 0, 5)
	var unknown []string
	for _, r := range m.roles() {
		name := strings.TrimSpace(r[1])
		if i := t.Column(name); i >= 0 {
			idx = append(idx, i)
			continue
		}
		if i, ok := canon[textnorm.Key(name)]; ok {
			idx = append(idx, i)
			continue
		}
		unknown = append(unknown, r[0]+"="+name)
		idx = append(idx, -1)
	}
	if len(unknown) > 0 {
		return columns{}, eris.Wrapf(ErrSchema, "incident: header has no column %s", strings.Join(unknown, ", "))
	}

	return columns{lat: idx[0], lon: idx[1], neighborhood: idx[2], date: idx[3], category: idx[4]}, nil
}

// ParseMapping decodes a YAML mapping preset.
func ParseMapping(data []byte) (ColumnMapping, error) {
	var m ColumnMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return ColumnMapping{}, eris.Wrap(err, "incident: parse mapping")
	}
	return m, nil
}

// LoadMapping reads a YAML mapping preset from path.
func LoadMapping(path string) (ColumnMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ColumnMapping{}, eris.Wrapf(err, "incident: read mapping %s", path)
	}
	return ParseMapping(data)
}

// WriteMapping encodes m as YAML.
func WriteMapping(w io.Writer, m ColumnMapping) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return eris.Wrap(err, "incident: write mapping")
	}
	return eris.Wrap(enc.Close(), "incident: write mapping")
}
