package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeblew999/plat-polos/internal/pmtiles"
)

// TileService manages PMTiles archives.
type TileService struct {
	tilesDir string
}

// NewTileService creates a new tile service.
func NewTileService(dataDir string) *TileService {
	return &TileService{
		tilesDir: filepath.Join(dataDir, "tiles"),
	}
}

// List returns all available archives with their header summary. Files that
// are not readable archives are listed with Error set.
func (s *TileService) List() ([]TileFile, error) {
	entries, err := os.ReadDir(s.tilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TileFile{}, nil
		}
		return nil, err
	}

	files := []TileFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != ".pmtiles" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		f := TileFile{
			Name:    entry.Name(),
			Dataset: strings.TrimSuffix(entry.Name(), ".pmtiles"),
			Size:    formatSize(info.Size()),
		}
		if a, err := pmtiles.ReadFile(filepath.Join(s.tilesDir, entry.Name())); err != nil {
			f.Error = err.Error()
		} else {
			describe(&f, a)
		}
		files = append(files, f)
	}

	return files, nil
}

func describe(f *TileFile, a pmtiles.Archive) {
	h := a.Header
	b := h.Bound()
	f.TileType = h.TileType.String()
	f.MinZoom = int(h.MinZoom)
	f.MaxZoom = int(h.MaxZoom)
	f.Bounds = []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	f.Layers = a.Metadata.LayerIDs()
}

// Check verifies that every dataset has a vector archive exposing the
// <dataset>_tile sub-layer. It returns one problem per failing dataset.
func (s *TileService) Check(datasets []string) []DatasetProblem {
	var problems []DatasetProblem
	for _, ds := range datasets {
		a, err := pmtiles.ReadFile(filepath.Join(s.tilesDir, ds+".pmtiles"))
		switch {
		case os.IsNotExist(err):
			problems = append(problems, DatasetProblem{Dataset: ds, Problem: "archive missing"})
		case err != nil:
			problems = append(problems, DatasetProblem{Dataset: ds, Problem: err.Error()})
		case a.Header.TileType != pmtiles.Mvt:
			problems = append(problems, DatasetProblem{Dataset: ds, Problem: fmt.Sprintf("tile type %s, want mvt", a.Header.TileType)})
		case len(a.Metadata.VectorLayers) > 0 && !hasLayer(a.Metadata, ds+"_tile"):
			problems = append(problems, DatasetProblem{Dataset: ds, Problem: fmt.Sprintf("no %s_tile layer", ds)})
		}
	}
	return problems
}

func hasLayer(m pmtiles.Metadata, id string) bool {
	for _, l := range m.VectorLayers {
		if l.ID == id {
			return true
		}
	}
	return false
}

// TilesDir returns the path to the tiles directory.
func (s *TileService) TilesDir() string {
	return s.tilesDir
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
