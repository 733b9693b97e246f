package boundary

import (
	"github.com/sells-group/response-map/internal/textnorm"
)

// NameIndex maps canonical neighborhood keys to the name as it appears in
// the boundary file.
type NameIndex map[string]string

// BuildNameIndex indexes every feature's field value by its canonical key.
// Duplicate keys are not detected; the last feature wins. Features are not
// modified.
func BuildNameIndex(features []Feature, field string) NameIndex {
	idx := make(NameIndex, len(features))
	for _, f := range features {
		name, ok := f.Name(field)
		if !ok {
			continue
		}
		idx[textnorm.Key(name)] = name
	}
	return idx
}

// NameKey returns the canonical key of the feature's name.
func (f Feature) NameKey(field string) (string, bool) {
	name, ok := f.Name(field)
	if !ok {
		return "", false
	}
	return textnorm.Key(name), true
}

// DisplayName returns the title-cased original name for key.
func (idx NameIndex) DisplayName(key string) (string, bool) {
	name, ok := idx[key]
	if !ok {
		return "", false
	}
	return textnorm.Title(name), true
}
