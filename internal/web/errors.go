package web

import (
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/response-map/internal/boundary"
	"github.com/sells-group/response-map/internal/export"
	"github.com/sells-group/response-map/internal/incident"
	"github.com/sells-group/response-map/internal/tabular"
)

// userError maps an error to a status code and a message fit for the page.
func userError(err error) (int, string) {
	switch {
	case eris.Is(err, tabular.ErrFormat), eris.Is(err, boundary.ErrFormat):
		return http.StatusBadRequest, "The uploaded file could not be read: " + err.Error()
	case eris.Is(err, incident.ErrSchema), eris.Is(err, boundary.ErrSchema):
		return http.StatusBadRequest, "The selected columns do not match the data: " + err.Error()
	case eris.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case eris.Is(err, export.ErrRasterize):
		return http.StatusBadGateway, "The PNG snapshot could not be produced. The HTML and XLSX downloads are still available."
	default:
		return http.StatusInternalServerError, "Something went wrong while building the map."
	}
}
