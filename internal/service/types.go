// Package service contains the process-wide services of plat-polos: the
// tile archive inventory and the fan-out bus sessions publish on.
package service

// TileFile represents a PMTiles archive.
type TileFile struct {
	Name     string    `json:"name" doc:"PMTiles file name" example:"polos.pmtiles"`
	Dataset  string    `json:"dataset" doc:"Dataset name used in pmtiles:// URLs" example:"polos"`
	Size     string    `json:"size" doc:"Human-readable file size" example:"5.4 MB"`
	TileType string    `json:"tileType,omitempty" doc:"Tile format" example:"mvt"`
	MinZoom  int       `json:"minZoom,omitempty" doc:"Minimum zoom"`
	MaxZoom  int       `json:"maxZoom,omitempty" doc:"Maximum zoom" example:"14"`
	Bounds   []float64 `json:"bounds,omitempty" doc:"Extent as [west, south, east, north]"`
	Layers   []string  `json:"layers,omitempty" doc:"Vector sub-layers"`
	Error    string    `json:"error,omitempty" doc:"Why the archive could not be read"`
}

// DatasetProblem reports a catalog dataset without a usable archive.
type DatasetProblem struct {
	Dataset string `json:"dataset" doc:"Dataset name" example:"polos"`
	Problem string `json:"problem" doc:"What is wrong" example:"archive missing"`
}
