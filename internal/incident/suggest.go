package incident

import (
	"strings"

	"github.com/sells-group/response-map/internal/textnorm"
)

// roleHints lists canonical substrings that mark a header as a role
// candidate, strongest first.
var roleHints = map[string][]string{
	"latitude":     {"latitud", "lat"},
	"longitude":    {"longitud", "lon", "lng", "long"},
	"neighborhood": {"colonia", "neighborhood", "barrio"},
	"date":         {"fecha", "date"},
	"category":     {"sm", "fuente", "source", "servicio"},
}

// SuggestMapping picks a default header for each role by looking for known
// Spanish and English names. Roles without a candidate stay empty, and a
// column is never suggested for two roles.
func SuggestMapping(header []string) ColumnMapping {
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = textnorm.Key(h)
	}
	used := make(map[int]bool)

	find := func(role string) string {
		for _, hint := range roleHints[role] {
			// exact canonical matches first
			for i, k := range keys {
				if !used[i] && k == hint {
					used[i] = true
					return header[i]
				}
			}
			for i, k := range keys {
				if !used[i] && containsWord(k, hint) {
					used[i] = true
					return header[i]
				}
			}
		}
		return ""
	}

	return ColumnMapping{
		Latitude:     find("latitude"),
		Longitude:    find("longitude"),
		Neighborhood: find("neighborhood"),
		Date:         find("date"),
		Category:     find("category"),
	}
}

// containsWord reports whether hint appears in key. Short hints must start a
// word so "sm" does not match "cosmos".
func containsWord(key, hint string) bool {
	if len(hint) > 3 {
		return strings.Contains(key, hint)
	}
	for _, w := range strings.FieldsFunc(key, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if strings.HasPrefix(w, hint) {
			return true
		}
	}
	return false
}

// SuggestNameField picks the boundary property most likely holding the
// neighborhood name.
func SuggestNameField(keys []string) string {
	for _, hint := range []string{"colonia", "nombre", "name", "neighborhood", "barrio", "nom"} {
		for _, k := range keys {
			if strings.Contains(textnorm.Key(k), hint) {
				return k
			}
		}
	}
	if len(keys) > 0 {
		return keys[0]
	}
	return ""
}
