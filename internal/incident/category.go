// Package incident turns uploaded response tables into typed records:
// schema mapping, response-source classification, the clean subset and
// date-range filtering.
package incident

import "github.com/sells-group/response-map/internal/textnorm"

// Category is the response source that attended an event.
type Category string

// Response-source categories. There is no unknown bucket.
const (
	CivilProtection Category = "Civil Protection"
	MedicalServices Category = "Medical Services"
)

// Categories lists every category in display order.
var Categories = []Category{CivilProtection, MedicalServices}

// medicalKey is the canonical indicator value for medical services.
const medicalKey = "sm"

// Classify maps a raw indicator cell to its category. Only values whose
// canonical key is "sm" (any case or accent variant) are medical services.
func Classify(raw string) Category {
	if textnorm.Key(raw) == medicalKey {
		return MedicalServices
	}
	return CivilProtection
}

// String implements fmt.Stringer.
func (c Category) String() string { return string(c) }
