// main.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

// Headless front end: loads a project file, streams the elevation
// tiles covering its bounds, computes merged coverage for all nodes,
// and writes the result as a georeferenced TIFF. The interactive 3d
// viewer drives the tile.Manager instead; this path only needs the
// providers and the analysis code.

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/radioscape/radioscape/export"
	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/log"
	"github.com/radioscape/radioscape/scene"
	"github.com/radioscape/radioscape/tile"
	"github.com/radioscape/radioscape/util"
	"github.com/radioscape/radioscape/viewshed"
)

var (
	projectFile  = flag.String("project", "", "project JSON file to analyze")
	outFile      = flag.String("out", "coverage.tif", "output GeoTIFF path")
	logLevel     = flag.String("loglevel", "info", "logging level: debug, info, warn, error")
	logDir       = flag.String("logdir", "", "log file directory")
	showLinks    = flag.Bool("links", false, "print a Longley-Rice link budget for every node pair")
	listProfiles = flag.Bool("profiles", false, "list built-in hardware profiles and exit")
	newProject   = flag.String("newproject", "", "write a template project file and exit")
	cullCache    = flag.Bool("cullcache", false, "trim the download cache to 1 GB before starting")
)

func main() {
	flag.Parse()

	lg := log.New(*logLevel, *logDir)
	defer lg.CatchAndReportCrash()

	if *listProfiles {
		for _, p := range scene.HardwareProfiles {
			fmt.Printf("%-24s %s: %g dBm tx, %g dBi, rx %g dBm\n",
				p.ID, p.Name, p.TxPowerDbm, p.AntennaGainDbi, p.RxSensitivityDbm)
		}
		return
	}

	if *newProject != "" {
		if err := writeTemplateProject(*newProject); err != nil {
			lg.Errorf("%s: %v", *newProject, err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", *newProject)
		return
	}

	if *cullCache {
		if err := util.CacheCullObjects(1 << 30); err != nil {
			lg.Warnf("cache cull: %v", err)
		}
	}

	if *projectFile == "" {
		fmt.Fprintln(os.Stderr, "usage: radioscape -project <file.json> [-out coverage.tif]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	proj, err := scene.LoadProject(*projectFile)
	if err != nil {
		lg.Errorf("%v", err)
		os.Exit(1)
	}
	lg.Infof("Project %q: %d nodes, bounds %+v", proj.Name, len(proj.Nodes), proj.Bounds)

	mos, err := loadElevation(proj, lg)
	if err != nil {
		lg.Errorf("%v", err)
		os.Exit(1)
	}
	lg.Infof("Elevation mosaic: %dx%d cells", mos.Rows, mos.Cols)

	merged := viewshed.ComputeMerged(mos.Elevation, mos.Rows, mos.Cols, mos.Bounds, proj.Nodes)

	covered := 0
	for _, v := range merged.Visibility {
		if v != 0 {
			covered++
		}
	}
	fmt.Printf("Coverage: %d/%d cells (%.1f%%)\n", covered, len(merged.Visibility),
		100*float64(covered)/float64(len(merged.Visibility)))

	if err := export.WriteCoverageFile(*outFile, merged, mos.Bounds); err != nil {
		lg.Errorf("%s: %v", *outFile, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *outFile)

	if *showLinks {
		model, err := viewshed.ParsePropagationModel(proj.Propagation)
		if err != nil {
			lg.Warnf("%v, using %s", err, model)
		}
		links := viewshed.AnalyzeLinks(mos.Elevation, mos.Rows, mos.Cols, mos.Bounds,
			proj.Nodes, model, proj.ITM)
		for _, l := range links {
			status := "down"
			if l.Viable {
				status = "up"
			}
			fmt.Printf("%s <-> %s: %.2f km, loss %.1f dB, rx %.1f dBm, margin %+.1f dB [%s]\n",
				proj.Nodes[l.A].Name, proj.Nodes[l.B].Name,
				l.DistanceKm, l.PathLossDb, l.RxDbm, l.MarginDb, status)
		}
	}
}

// elevationMosaic is the project area's terrain stitched from the
// individual one-degree tiles.
type elevationMosaic struct {
	Elevation  []float32
	Rows, Cols int
	Bounds     geo.Bounds
}

// loadElevation fetches and stitches the tiles covering the project
// bounds, caching the assembled mosaic on disk keyed by the bounds.
func loadElevation(proj *scene.Project, lg *log.Logger) (*elevationMosaic, error) {
	key := fmt.Sprintf("mosaic/%.4f_%.4f_%.4f_%.4f",
		proj.Bounds.MinLat, proj.Bounds.MinLon, proj.Bounds.MaxLat, proj.Bounds.MaxLon)

	var mos elevationMosaic
	if _, err := util.CacheRetrieveObject(key, &mos); err == nil &&
		len(mos.Elevation) == mos.Rows*mos.Cols && mos.Rows > 0 {
		lg.Infof("Elevation mosaic from cache")
		return &mos, nil
	}

	var provider tile.Provider
	if proj.DSMDir != "" {
		p := tile.NewDSMProvider(lg)
		p.SetDataDir(proj.DSMDir)
		provider = p
	} else {
		provider = tile.NewHGTProvider(lg)
	}

	m, err := buildMosaic(provider, proj.Bounds, lg)
	if err != nil {
		return nil, err
	}

	if err := util.CacheStoreObject(key, m); err != nil {
		lg.Warnf("mosaic cache store: %v", err)
	}
	return m, nil
}

// buildMosaic fetches every tile covering bounds and stitches those
// that share the first tile's resolution into one grid. Adjacent HGT
// tiles duplicate their shared edge row, so tiles are spaced rows-1
// cells apart.
func buildMosaic(p tile.Provider, b geo.Bounds, lg *log.Logger) (*elevationMosaic, error) {
	coords := p.TilesInBounds(b, 0)
	if len(coords) == 0 {
		return nil, fmt.Errorf("no %s tiles cover %+v", p.Name(), b)
	}

	fetched := make([]*tile.Data, len(coords))
	var g errgroup.Group
	g.SetLimit(4)
	for i, c := range coords {
		i, c := i, c
		g.Go(func() error {
			d, err := p.FetchTile(c)
			if err != nil {
				lg.Warnf("fetch %s: %v", c, err)
				return nil
			}
			fetched[i] = d
			return nil
		})
	}
	g.Wait()

	var rows, cols int
	var datas []*tile.Data
	for _, d := range fetched {
		if d == nil || !d.HasElevation() {
			continue
		}
		if rows == 0 {
			rows, cols = d.ElevRows, d.ElevCols
		} else if d.ElevRows != rows || d.ElevCols != cols {
			lg.Warnf("tile %s: %dx%d doesn't match mosaic %dx%d, skipping",
				d.Coord, d.ElevRows, d.ElevCols, rows, cols)
			continue
		}
		datas = append(datas, d)
	}
	if len(datas) == 0 {
		return nil, fmt.Errorf("no elevation tiles available for %+v", b)
	}

	minX, maxX := datas[0].Coord.X, datas[0].Coord.X
	minY, maxY := datas[0].Coord.Y, datas[0].Coord.Y
	total := datas[0].Bounds
	for _, d := range datas[1:] {
		minX, maxX = min(minX, d.Coord.X), max(maxX, d.Coord.X)
		minY, maxY = min(minY, d.Coord.Y), max(maxY, d.Coord.Y)
		total = total.Union(d.Bounds)
	}

	mosRows := (maxY-minY+1)*(rows-1) + 1
	mosCols := (maxX-minX+1)*(cols-1) + 1
	grid := make([]float32, mosRows*mosCols)

	for _, d := range datas {
		// HGT and DSM y count northward; row 0 of the mosaic is north.
		rowOff := (maxY - d.Coord.Y) * (rows - 1)
		colOff := (d.Coord.X - minX) * (cols - 1)
		for r := 0; r < rows; r++ {
			copy(grid[(rowOff+r)*mosCols+colOff:(rowOff+r)*mosCols+colOff+cols],
				d.Elevation[r*cols:(r+1)*cols])
		}
	}

	return &elevationMosaic{Elevation: grid, Rows: mosRows, Cols: mosCols, Bounds: total}, nil
}

// writeTemplateProject saves a minimal two-node project to edit.
func writeTemplateProject(path string) error {
	p := &scene.Project{
		Name:   "New Project",
		Bounds: geo.Bounds{MinLat: 39.0, MinLon: -105.5, MaxLat: 40.0, MaxLon: -104.5},
		RF:     scene.DefaultRFConfig(),
		ITM:    scene.DefaultITMParams(),
		Nodes: []scene.Node{
			{Name: "base", Lat: 39.5, Lon: -105.0, AntennaHeightM: 10, MaxRangeKm: 10},
			{Name: "relay", Lat: 39.6, Lon: -104.9, AntennaHeightM: 5, MaxRangeKm: 5},
		},
	}
	for i := range p.Nodes {
		p.Nodes[i].ApplyDefaults()
	}
	return p.Save(path)
}
