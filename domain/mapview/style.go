package mapview

import "strings"

// FallbackGridTile is served locally when online tiles are unavailable.
const FallbackGridTile = "/fallback/grid.png"

// Style is a maplibre style document (version 8).
type Style struct {
	Version int               `json:"version"`
	Sources map[string]Source `json:"sources"`
	Layers  []Layer           `json:"layers"`
}

// Source is a raster tile source.
type Source struct {
	Type        string   `json:"type"`
	Tiles       []string `json:"tiles"`
	TileSize    int      `json:"tileSize"`
	Attribution string   `json:"attribution,omitempty"`
}

// Layer draws one source.
type Layer struct {
	ID     string                 `json:"id"`
	Type   string                 `json:"type"`
	Source string                 `json:"source"`
	Paint  map[string]interface{} `json:"paint,omitempty"`
}

var tileSubdomains = []string{"a", "b", "c"}

// OnlineStyle renders raster tiles from tileURL. A "{s}" placeholder is
// expanded over the a/b/c subdomains.
func OnlineStyle(tileURL, attribution string) *Style {
	var tiles []string
	if strings.Contains(tileURL, "{s}") {
		for _, sub := range tileSubdomains {
			tiles = append(tiles, strings.ReplaceAll(tileURL, "{s}", sub))
		}
	} else {
		tiles = []string{tileURL}
	}
	return &Style{
		Version: 8,
		Sources: map[string]Source{
			"osmTiles": {Type: "raster", Tiles: tiles, TileSize: 256, Attribution: attribution},
		},
		Layers: []Layer{
			{ID: "osm-layer", Type: "raster", Source: "osmTiles"},
		},
	}
}

// GridOnlyStyle renders the local grid tile only.
func GridOnlyStyle() *Style {
	return &Style{
		Version: 8,
		Sources: map[string]Source{
			"grid": {Type: "raster", Tiles: []string{FallbackGridTile}, TileSize: 256},
		},
		Layers: []Layer{
			{ID: "grid-layer", Type: "raster", Source: "grid"},
		},
	}
}
