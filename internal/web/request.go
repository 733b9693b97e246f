package web

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/response-map/internal/incident"
	"github.com/sells-group/response-map/internal/pipeline"
	"github.com/sells-group/response-map/internal/session"
	"github.com/sells-group/response-map/internal/tiles"
)

// errBadRequest marks unusable query parameters.
var errBadRequest = eris.New("invalid request")

// Query parameter names shared by the forms and the download links.
const (
	paramLat          = "lat"
	paramLon          = "lon"
	paramNeighborhood = "neighborhood"
	paramDate         = "date"
	paramCategory     = "category"
	paramNameField    = "name_field"
	paramFrom         = "from"
	paramTo           = "to"
	paramLegend       = "legend"
)

const dayLayout = "2006-01-02"

// open-ended bounds for a half-specified range
var (
	minDay = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	maxDay = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

// RenderRequest is the user's selection for one map, read from the query
// string. It is immutable once parsed.
type RenderRequest struct {
	Mapping    incident.ColumnMapping
	From       string
	To         string
	Range      *incident.DateRange
	ShowLegend bool
}

// parseRenderRequest reads q, falling back to defaults for absent roles.
func parseRenderRequest(q url.Values, defaults incident.ColumnMapping, legendDefault bool) (RenderRequest, error) {
	req := RenderRequest{
		Mapping: incident.ColumnMapping{
			Latitude:     q.Get(paramLat),
			Longitude:    q.Get(paramLon),
			Neighborhood: q.Get(paramNeighborhood),
			Date:         q.Get(paramDate),
			Category:     q.Get(paramCategory),
			NameField:    q.Get(paramNameField),
		}.Merge(defaults),
		From:       strings.TrimSpace(q.Get(paramFrom)),
		To:         strings.TrimSpace(q.Get(paramTo)),
		ShowLegend: legendDefault,
	}

	// a hidden "0" precedes the checkbox, so the last value wins
	if vals := q[paramLegend]; len(vals) > 0 {
		req.ShowLegend = vals[len(vals)-1] == "1"
	}

	if req.From == "" && req.To == "" {
		return req, nil
	}
	r := incident.DateRange{Start: minDay, End: maxDay}
	if req.From != "" {
		d, err := incident.ParseDay(req.From)
		if err != nil {
			return RenderRequest{}, eris.Wrapf(errBadRequest, "web: start date %q is not YYYY-MM-DD", req.From)
		}
		r.Start = d
	}
	if req.To != "" {
		d, err := incident.ParseDay(req.To)
		if err != nil {
			return RenderRequest{}, eris.Wrapf(errBadRequest, "web: end date %q is not YYYY-MM-DD", req.To)
		}
		r.End = d
	}
	req.Range = &r
	return req, nil
}

// Query encodes the request back into URL parameters.
func (rr RenderRequest) Query() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set(paramLat, rr.Mapping.Latitude)
	set(paramLon, rr.Mapping.Longitude)
	set(paramNeighborhood, rr.Mapping.Neighborhood)
	set(paramDate, rr.Mapping.Date)
	set(paramCategory, rr.Mapping.Category)
	set(paramNameField, rr.Mapping.NameField)
	set(paramFrom, rr.From)
	set(paramTo, rr.To)
	if rr.ShowLegend {
		q.Set(paramLegend, "1")
	} else {
		q.Set(paramLegend, "0")
	}
	return q
}

// defaultMapping fills roles the session has not chosen yet from header
// and property-name suggestions.
func defaultMapping(st session.State) incident.ColumnMapping {
	m := st.Mapping
	if st.Table != nil {
		m = m.Merge(incident.SuggestMapping(st.Table.Header))
	}
	if m.NameField == "" && st.Boundaries != nil {
		m.NameField = incident.SuggestNameField(st.Boundaries.PropertyKeys())
	}
	return m
}

// run parses the request and runs the pipeline for the caller's session.
func (s *Server) run(r *http.Request) (*pipeline.Result, RenderRequest, error) {
	ref := sessionFrom(r)
	req, err := parseRenderRequest(r.URL.Query(), defaultMapping(ref.state), s.opts.Map.ShowLegend)
	if err != nil {
		return nil, RenderRequest{}, err
	}

	opts := s.opts.Map
	opts.ShowLegend = req.ShowLegend
	if s.proxy != nil {
		opts.TileURL = baseURL(r) + tiles.LocalURL
	}

	res, err := pipeline.Run(pipeline.Request{
		Table:      ref.state.Table,
		Boundaries: ref.state.Boundaries,
		Mapping:    req.Mapping,
		Range:      req.Range,
		Parse:      s.opts.Parse,
		Options:    opts,
	})
	if err != nil {
		return nil, req, err
	}

	s.sessions.Update(ref.id, func(st *session.State) { st.Mapping = req.Mapping })
	return res, req, nil
}

// baseURL is the absolute origin of r so exported pages can reach the
// tile proxy.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
