package mapview

import (
	"encoding/json"
	"html/template"
	"io"

	"github.com/rotisserie/eris"
)

// Pinned client libraries.
const (
	leafletCSS  = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.css"
	leafletJS   = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"
	leafletHeat = "https://unpkg.com/leaflet.heat@0.2.0/dist/leaflet-heat.js"
)

var pageTmpl = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="{{.LeafletCSS}}">
<script src="{{.LeafletJS}}"></script>
<script src="{{.LeafletHeat}}"></script>
<style>
  html, body, #map { height: 100%; margin: 0; }
  .rm-label div { font-family: Arial, sans-serif; font-size: 11px; font-weight: bold; color: #333; text-shadow: 1px 1px 1px #fff; white-space: nowrap; }
  .rm-legend { background: #fff; padding: 6px 10px; border-radius: 4px; box-shadow: 0 0 6px rgba(0,0,0,0.3); font: 12px Arial, sans-serif; line-height: 18px; }
  .rm-legend i { display: inline-block; width: 12px; height: 12px; border-radius: 50%; margin-right: 6px; vertical-align: middle; }
</style>
</head>
<body>
<div id="map"></div>
<script>
(function () {
  var data = {{.Data}};
  function esc(s) {
    return String(s == null ? "" : s)
      .split("&").join("&amp;")
      .split("<").join("&lt;")
      .split(">").join("&gt;")
      .split('"').join("&quot;")
      .split("'").join("&#39;");
  }

  var map = L.map("map").setView([data.center.lat, data.center.lng], data.zoom);
  if (data.tiles.url) {
    L.tileLayer(data.tiles.url, { attribution: data.tiles.attribution, subdomains: "abcd", maxZoom: 20 }).addTo(map);
  }

  var overlays = {};
  data.layers.forEach(function (layer) {
    var group = null;
    if (layer.kind === "boundaries") {
      group = L.geoJSON(layer.geojson, {
        style: function () {
          return { fillColor: layer.style.fill_color, color: layer.style.color, weight: layer.style.weight, fillOpacity: layer.style.fill_opacity };
        },
        onEachFeature: function (f, l) {
          if (f.properties && f.properties.display_name) {
            l.bindTooltip("<b>" + esc(layer.tooltip_label) + "</b> " + esc(f.properties.display_name));
          }
        }
      });
    } else if (layer.kind === "labels") {
      group = L.layerGroup((layer.labels || []).map(function (lb) {
        return L.marker([lb.lat, lb.lng], {
          interactive: false,
          icon: L.divIcon({ className: "rm-label", iconSize: null, html: "<div>" + esc(lb.text) + "</div>" })
        });
      }));
    } else if (layer.kind === "markers") {
      group = L.layerGroup((layer.markers || []).map(function (m) {
        return L.circleMarker([m.lat, m.lng], {
          radius: layer.radius, color: layer.color, fill: true, fillColor: layer.color, fillOpacity: layer.fill_opacity
        }).bindPopup(
          "<b>Date:</b> " + esc(m.date) +
          "<br><b>Neighborhood:</b> " + esc(m.neighborhood) +
          "<br><b>Attended by:</b> " + esc(m.attended_by), { maxWidth: 300 }
        ).bindTooltip(esc(m.tooltip));
      }));
    } else if (layer.kind === "heat" && L.heatLayer) {
      group = L.heatLayer(layer.heat || [], { radius: layer.heat_radius });
    }
    if (!group) {
      return;
    }
    if (layer.visible) {
      group.addTo(map);
    }
    overlays[esc(layer.name)] = group;
  });
  L.control.layers(null, overlays, { collapsed: false }).addTo(map);

  if (data.legend) {
    var legend = L.control({ position: "bottomright" });
    legend.onAdd = function () {
      var div = L.DomUtil.create("div", "rm-legend");
      var html = "<b>" + esc(data.legend.title) + "</b>";
      data.legend.entries.forEach(function (e) {
        html += "<div><i style=\"background:" + esc(e.color) + "\"></i>" + esc(e.label) + "</div>";
      });
      div.innerHTML = html;
      return div;
    };
    legend.addTo(map);
  }
})();
</script>
</body>
</html>
`))

type pageData struct {
	Title       string
	LeafletCSS  string
	LeafletJS   string
	LeafletHeat string
	Data        template.JS
}

// WriteHTML writes m as a standalone Leaflet page.
func WriteHTML(w io.Writer, m *Map) error {
	if m == nil {
		return eris.New("mapview: nil map")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "mapview: encode map data")
	}

	err = pageTmpl.Execute(w, pageData{
		Title:       "Emergency Response Map",
		LeafletCSS:  leafletCSS,
		LeafletJS:   leafletJS,
		LeafletHeat: leafletHeat,
		Data:        template.JS(data), //nolint:gosec // json.Marshal escapes <, > and &
	})
	if err != nil {
		return eris.Wrap(err, "mapview: write html")
	}
	return nil
}
