package web

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/response-map/internal/boundary"
	"github.com/sells-group/response-map/internal/export"
	"github.com/sells-group/response-map/internal/incident"
	"github.com/sells-group/response-map/internal/mapview"
	"github.com/sells-group/response-map/internal/pipeline"
	"github.com/sells-group/response-map/internal/session"
	"github.com/sells-group/response-map/internal/tabular"
)

// maxListedSkips caps the dropped-rows table on the map page.
const maxListedSkips = 50

// base carries fields the layout reads.
type base struct {
	Error string
}

type indexPage struct {
	base
	HasSession bool
}

type messagePage struct {
	base
	Message string
}

type roleSelect struct {
	Param    string
	Label    string
	Selected string
}

type configurePage struct {
	base
	DataName     string
	BoundaryName string
	Rows         int
	Features     int
	Malformed    int
	Header       []string
	Roles        []roleSelect
	PropertyKeys []string
	NameField    string
	From, To     string
	Legend       bool
}

type mapPage struct {
	base
	Counts         incident.Counts
	InputRows      int
	Dropped        int
	From, To       string
	Empty          bool
	Skipped        []incident.Skip
	SkippedMore    bool
	SkippedMarkers []mapview.SkippedMarker
	SkippedLabels  []mapview.SkippedLabel
	PNGEnabled     bool
	ConfigureURL   template.URL
	FrameURL       template.URL
	HTMLURL        template.URL
	PNGURL         template.URL
	XLSXURL        template.URL
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	_, _, ok := s.sessions.FromRequest(r)
	s.pages.render(w, http.StatusOK, "index", indexPage{HasSession: ok})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	fail := func(status int, msg string) {
		s.pages.render(w, status, "index", indexPage{base: base{Error: msg}})
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(http.StatusRequestEntityTooLarge, "The upload is larger than the configured limit.")
			return
		}
		fail(http.StatusBadRequest, "The upload could not be read. Choose both files and try again.")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	dataFile, dataHdr, err := r.FormFile("data")
	if err != nil {
		fail(http.StatusBadRequest, "Choose a response records file (.xlsx or .csv).")
		return
	}
	defer func() { _ = dataFile.Close() }()

	boundaryFile, boundaryHdr, err := r.FormFile("boundaries")
	if err != nil {
		fail(http.StatusBadRequest, "Choose a neighborhood boundaries file (.geojson or .zip).")
		return
	}
	defer func() { _ = boundaryFile.Close() }()

	table, err := tabular.Read(dataHdr.Filename, dataFile, tabular.Options{SheetName: s.opts.SheetName})
	if err != nil {
		status, msg := userError(err)
		fail(status, msg)
		return
	}
	coll, err := boundary.Load(boundaryHdr.Filename, boundaryFile)
	if err != nil {
		status, msg := userError(err)
		fail(status, msg)
		return
	}

	if oldID, _, ok := s.sessions.FromRequest(r); ok {
		s.sessions.Delete(oldID)
	}
	id := s.sessions.Create(session.State{
		DataName:     dataHdr.Filename,
		Table:        table,
		BoundaryName: boundaryHdr.Filename,
		Boundaries:   coll,
		UploadedAt:   time.Now(),
	})
	s.sessions.SetCookie(w, id)

	zap.L().Info("web: upload accepted",
		zap.String("component", "web"),
		zap.String("data", dataHdr.Filename),
		zap.Int("rows", len(table.Rows)),
		zap.String("boundaries", boundaryHdr.Filename),
		zap.Int("features", len(coll.Features)),
	)
	http.Redirect(w, r, "/configure", http.StatusSeeOther)
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	st := sessionFrom(r).state

	page := configurePage{
		DataName:     st.DataName,
		BoundaryName: st.BoundaryName,
		Rows:         len(st.Table.Rows),
		Features:     len(st.Boundaries.Features),
		Malformed:    st.Boundaries.MalformedGeometries,
		Header:       st.Table.Header,
		PropertyKeys: st.Boundaries.PropertyKeys(),
	}

	req, err := parseRenderRequest(r.URL.Query(), defaultMapping(st), s.opts.Map.ShowLegend)
	if err != nil {
		_, page.Error = userError(err)
		req, _ = parseRenderRequest(nil, defaultMapping(st), s.opts.Map.ShowLegend)
	}
	page.NameField = req.Mapping.NameField
	page.Legend = req.ShowLegend
	page.Roles = []roleSelect{
		{Param: paramLat, Label: "Latitude", Selected: req.Mapping.Latitude},
		{Param: paramLon, Label: "Longitude", Selected: req.Mapping.Longitude},
		{Param: paramNeighborhood, Label: "Neighborhood", Selected: req.Mapping.Neighborhood},
		{Param: paramDate, Label: "Date", Selected: req.Mapping.Date},
		{Param: paramCategory, Label: "Response source indicator (SM = Medical Services)", Selected: req.Mapping.Category},
	}

	page.From, page.To = req.From, req.To
	if req.Range == nil {
		if clean, err := incident.Build(st.Table, req.Mapping, s.opts.Parse); err == nil {
			if span, ok := incident.Span(clean.Records); ok {
				page.From = span.Start.Format(dayLayout)
				page.To = span.End.Format(dayLayout)
			}
		}
	}

	s.pages.render(w, http.StatusOK, "configure", page)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	res, req, err := s.run(r)
	if err != nil {
		s.renderError(w, err)
		return
	}

	q := req.Query()
	page := mapPage{
		Counts:       res.Counts,
		InputRows:    res.Clean.InputRows,
		Dropped:      res.Clean.Dropped,
		Empty:        res.Empty(),
		PNGEnabled:   s.raster != nil,
		ConfigureURL: linkTo("/configure", q.Encode()),
		FrameURL:     linkTo("/map/frame", q.Encode()),
		HTMLURL:      linkTo("/export/map.html", q.Encode()),
		PNGURL:       linkTo("/export/map.png", q.Encode()),
		XLSXURL:      linkTo("/export/records.xlsx", q.Encode()),
	}
	page.From, page.To = req.From, req.To
	if page.From == "" && !res.Span.Start.IsZero() {
		page.From = displayDay(res.Span.Start)
	}
	if page.To == "" && !res.Span.End.IsZero() {
		page.To = displayDay(res.Span.End)
	}
	page.Skipped = res.Clean.Skipped
	if len(page.Skipped) > maxListedSkips {
		page.Skipped = page.Skipped[:maxListedSkips]
		page.SkippedMore = true
	}
	if res.Map != nil {
		page.SkippedMarkers = res.Map.Diagnostics.SkippedMarkers
		page.SkippedLabels = res.Map.Diagnostics.SkippedLabels
	}

	s.pages.render(w, http.StatusOK, "map", page)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	res, ok := s.renderable(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := mapview.WriteHTML(w, res.Map); err != nil {
		zap.L().Error("web: write map frame", zap.Error(err))
	}
}

func (s *Server) handleExportHTML(w http.ResponseWriter, r *http.Request) {
	res, ok := s.renderable(w, r)
	if !ok {
		return
	}
	page, err := export.HTML(res.Map)
	if err != nil {
		s.renderError(w, err)
		return
	}
	download(w, "response-map.html", "text/html; charset=utf-8", page)
}

func (s *Server) handleExportPNG(w http.ResponseWriter, r *http.Request) {
	if s.raster == nil {
		s.pages.render(w, http.StatusNotFound, "message", messagePage{Message: "PNG export is not available on this server."})
		return
	}
	res, ok := s.renderable(w, r)
	if !ok {
		return
	}
	page, err := export.HTML(res.Map)
	if err != nil {
		s.renderError(w, err)
		return
	}

	ctx := r.Context()
	if s.opts.RasterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RasterTimeout)
		defer cancel()
	}
	img, err := s.raster.Rasterize(ctx, page)
	if err != nil {
		zap.L().Warn("web: png export failed", zap.String("component", "web"), zap.Error(err))
		s.renderError(w, err)
		return
	}
	download(w, "response-map.png", "image/png", img)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	res, ok := s.renderable(w, r)
	if !ok {
		return
	}
	data, err := export.RecordsXLSX(res.Records)
	if err != nil {
		s.renderError(w, err)
		return
	}
	download(w, "response-records.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// renderable runs the pipeline and writes the error or empty-range page
// when there is no map to return.
func (s *Server) renderable(w http.ResponseWriter, r *http.Request) (*pipeline.Result, bool) {
	res, _, err := s.run(r)
	if err != nil {
		s.renderError(w, err)
		return nil, false
	}
	if res.Empty() {
		s.pages.render(w, http.StatusNotFound, "message", messagePage{Message: "No records in the selected date range."})
		return nil, false
	}
	return res, true
}

func (s *Server) renderError(w http.ResponseWriter, err error) {
	status, msg := userError(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("web: request failed", zap.String("component", "web"), zap.Error(err))
	}
	s.pages.render(w, status, "message", messagePage{base: base{Error: msg}})
}

func download(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(data)
}

func linkTo(path, rawQuery string) template.URL {
	if rawQuery == "" {
		return template.URL(path) //nolint:gosec // fixed path
	}
	return template.URL(path + "?" + rawQuery) //nolint:gosec // query is url-encoded
}

func displayDay(t time.Time) string {
	return t.Format(dayLayout)
}
