// Command mbnavfuse drives the import, QA, crossing-detection and
// navigation-adjustment stages over a set of swath-sonar survey files.
//
// Grounded on the teacher's cmd/main.go: a urfave/cli/v2 app whose
// subcommands each wrap one library-level operation, a fixed pond
// worker pool sized at 2*NumCPU for per-file fan-out, and
// signal.NotifyContext so Ctrl+C cancels in-flight work cleanly.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/alitto/pond"
	"github.com/urfave/cli/v2"

	"github.com/oceanfusion/mbnavfuse/internal/archive"
	"github.com/oceanfusion/mbnavfuse/internal/crossing"
	"github.com/oceanfusion/mbnavfuse/internal/driver"
	"github.com/oceanfusion/mbnavfuse/internal/export"
	"github.com/oceanfusion/mbnavfuse/internal/geo"
	"github.com/oceanfusion/mbnavfuse/internal/gsfdriver"
	"github.com/oceanfusion/mbnavfuse/internal/inversion"
	"github.com/oceanfusion/mbnavfuse/internal/pipeline"
	"github.com/oceanfusion/mbnavfuse/internal/project"
	"github.com/oceanfusion/mbnavfuse/internal/qa"
	"github.com/oceanfusion/mbnavfuse/internal/search"
	"github.com/oceanfusion/mbnavfuse/internal/sidescan"
)

func defaultConfig() pipeline.Config {
	return pipeline.Config{
		OutputSource: driver.KindSurvey,
		SidescanOpts: sidescan.Options{
			Width: 1001, NAngle: 161, AngleMin: -80, AngleMax: 80,
			InterpolationLimit: 5,
		},
		FlatBottom: true,
	}
}

// importCmd trawls uri for survey files, runs the pipeline over each
// one, and writes the resulting file/section skeleton to a new
// project.nvh under projectDir.
func importCmd(cCtx *cli.Context) error {
	uri := cCtx.String("uri")
	pattern := cCtx.String("pattern")
	configURI := cCtx.String("config-uri")
	projectDir := cCtx.String("project-dir")
	projectName := cCtx.String("project-name")
	routeFile := cCtx.String("route-file")
	timeListFile := cCtx.String("time-list-file")
	routeRadius := cCtx.Float64("route-radius")

	log.Println("Searching:", uri)
	paths, err := search.Find(uri, pattern, configURI)
	if err != nil {
		return err
	}
	log.Println("Files to process:", len(paths))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var drv gsfdriver.Driver
	cfg := defaultConfig()
	switch {
	case routeFile != "":
		rt, err := pipeline.ParseRouteFile(routeFile, pipeline.LineRoute, routeRadius)
		if err != nil {
			return err
		}
		cfg.Route = rt
	case timeListFile != "":
		rt, err := pipeline.ParseRouteFile(timeListFile, pipeline.LineTimeList, routeRadius)
		if err != nil {
			return err
		}
		cfg.Route = rt
	}
	results := pipeline.Run(ctx, drv, paths, cfg)

	sess := project.New(projectDir, projectName)
	for _, r := range results {
		if r.Err != nil {
			log.Printf("skipping %s: %v", r.Path, r.Err)
			continue
		}
		f := sess.AddFile(r.Path, 121)
		if len(r.Pings) == 0 {
			continue
		}
		f.Sections = append(f.Sections, sectionsByLine(r.Pings)...)
	}

	if err := sess.Save(); err != nil {
		return err
	}
	log.Println("Wrote project:", filepath.Join(projectDir, "project.nvh"))
	return nil
}

// sectionsByLine splits one file's synthesized pings into a project
// section per pipeline.Ping.Line, so an active route/time-list
// (spec.md §6.4's line_mode) starts a new output section at each
// boundary crossing instead of folding an entire file into one section.
func sectionsByLine(pings []pipeline.Ping) []*project.Section {
	var sections []*project.Section
	var cur []pipeline.Ping
	line := pings[0].Line

	flush := func() {
		if len(cur) == 0 {
			return
		}
		bbox := geo.Empty()
		snavs := make([]project.Snav, len(cur))
		for i, p := range cur {
			bbox.Extend(p.Longitude, p.Latitude)
			snavs[i] = project.Snav{Time: p.Timestamp, Lon: p.Longitude, Lat: p.Latitude}
		}
		sections = append(sections, &project.Section{
			ID:    len(sections),
			Begin: cur[0].Timestamp,
			End:   cur[len(cur)-1].Timestamp,
			BBox:  bbox,
			Snav:  snavs,
		})
	}

	for _, p := range pings {
		if p.Line != line {
			flush()
			cur = nil
			line = p.Line
		}
		cur = append(cur, p)
	}
	flush()
	return sections
}

// qaReport pairs a file path with its quality report, for an
// order-preserving result slice (a map written from pool workers would
// race; see internal/pipeline.Run for the same pattern).
type qaReport struct {
	Path string
	Info qa.Info
}

// qaCmd re-runs the pipeline over every survey file found by trawling
// the given URI and writes a per-file quality report as JSON,
// either to stdout or, with --out, via internal/export.
func qaCmd(cCtx *cli.Context) error {
	uri := cCtx.String("uri")
	pattern := cCtx.String("pattern")
	configURI := cCtx.String("config-uri")
	outURI := cCtx.String("out")

	paths, err := search.Find(uri, pattern, configURI)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var drv gsfdriver.Driver
	cfg := defaultConfig()

	n := runtime.NumCPU() * 2
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(ctx))

	reports := make([]qaReport, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		i, p := i, p
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			pings, err := pipeline.RunFile(ctx, drv, p, cfg)
			if err != nil {
				log.Printf("qa: skipping %s: %v", p, err)
				return
			}
			summaries := make([]qa.PingSummary, len(pings))
			for j, pg := range pings {
				summaries[j] = qa.PingSummary{Timestamp: pg.Timestamp, NumBeams: len(pg.Layout.Pixels)}
			}
			reports[i] = qaReport{Path: p, Info: qa.Analyze(summaries, map[string]uint64{"SWATH_BATHYMETRY_PING": uint64(len(pings))})}
		})
	}
	wg.Wait()
	pool.StopAndWait()

	if outURI != "" {
		_, err := export.WriteJSON(outURI, configURI, reports)
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

// archiveCmd re-runs the pipeline over every survey file found by
// trawling the given URI and writes each file's synthesized pings to a
// TileDB sidecar array under archiveDir, named after the source file
// (the domain-stack commitment SPEC_FULL.md makes for an archive
// layer alongside the project store's own navigation-graph bookkeeping).
func archiveCmd(cCtx *cli.Context) error {
	uri := cCtx.String("uri")
	pattern := cCtx.String("pattern")
	configURI := cCtx.String("config-uri")
	archiveDir := cCtx.String("archive-dir")

	paths, err := search.Find(uri, pattern, configURI)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var tdbConfig *tiledb.Config
	if configURI == "" {
		tdbConfig, err = tiledb.NewConfig()
	} else {
		tdbConfig, err = tiledb.LoadConfig(configURI)
	}
	if err != nil {
		return err
	}
	defer tdbConfig.Free()

	arc, err := archive.Open(tdbConfig)
	if err != nil {
		return err
	}
	defer arc.Close()

	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return err
	}

	var drv gsfdriver.Driver
	cfg := defaultConfig()
	for _, p := range paths {
		pings, err := pipeline.RunFile(ctx, drv, p, cfg)
		if err != nil {
			log.Printf("archive: skipping %s: %v", p, err)
			continue
		}
		if len(pings) == 0 {
			continue
		}

		base := filepath.Base(p)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		out := filepath.Join(archiveDir, name+".tiledb")
		if err := arc.WritePings(out, pings); err != nil {
			return fmt.Errorf("archive %s: %w", p, err)
		}
		log.Println("Archived:", out)
	}
	return nil
}

// crossingsCmd loads a project, derives a coarse per-section track from
// its stored Snav control points, detects crossings, and re-saves the
// project with the merged crossing set.
func crossingsCmd(cCtx *cli.Context) error {
	projectDir := cCtx.String("project-dir")
	swathWidth := cCtx.Float64("swath-width")

	sess, err := project.Load(projectDir)
	if err != nil {
		return err
	}

	var tracks []crossing.SectionTrack
	for _, f := range sess.Files {
		for _, sec := range f.Sections {
			pts := make([]crossing.TrackPoint, len(sec.Snav))
			for i, sn := range sec.Snav {
				pts[i] = crossing.TrackPoint{Lon: sn.Lon, Lat: sn.Lat, SwathRadius: swathWidth / 2}
			}
			tracks = append(tracks, crossing.SectionTrack{FileID: f.ID, SectionID: sec.ID, Points: pts})
		}
	}

	found := crossing.Detect(sess, tracks)
	sess.MergeCrossings(found)
	log.Println("Crossings detected:", len(found))

	return sess.Save()
}

// adjustCmd loads a project, inverts its tie graph for per-snav offset
// corrections, marks the project solved, and re-saves it.
func adjustCmd(cCtx *cli.Context) error {
	projectDir := cCtx.String("project-dir")

	sess, err := project.Load(projectDir)
	if err != nil {
		return err
	}

	result, err := inversion.Solve(sess)
	if err != nil {
		return err
	}
	log.Printf("Inversion converged: unknowns=%d rows=%d rms_residual=%.6f", result.NumUnknowns, result.NumRows, result.Residual)

	sess.MarkSolved()
	return sess.Save()
}

func main() {
	app := &cli.App{
		Name:  "mbnavfuse",
		Usage: "fuse multibeam/sidescan survey navigation and bathymetry across a tie-graph project",
		Commands: []*cli.Command{
			{
				Name:  "import",
				Usage: "trawl a uri for survey files, synthesize pings, and initialize a project",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uri", Usage: "URI or pathname to search for survey files", Required: true},
					&cli.StringFlag{Name: "pattern", Usage: "glob pattern for matching basenames", Value: "*.gsf"},
					&cli.StringFlag{Name: "config-uri", Usage: "URI or pathname to a TileDB config file"},
					&cli.StringFlag{Name: "project-dir", Usage: "output directory for the project", Required: true},
					&cli.StringFlag{Name: "project-name", Usage: "project name", Value: "survey"},
					&cli.StringFlag{Name: "route-file", Usage: "route file (spec.md §6.3) starting a new section at each proximity crossing"},
					&cli.StringFlag{Name: "time-list-file", Usage: "time-list file (spec.md §6.3) starting a new section at each scheduled time"},
					&cli.Float64Flag{Name: "route-radius", Usage: "proximity radius in metres for --route-file crossings", Value: 500},
				},
				Action: importCmd,
			},
			{
				Name:  "qa",
				Usage: "report beam-count, duplicate-ping and schema consistency across a set of survey files",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uri", Usage: "URI or pathname to search for survey files", Required: true},
					&cli.StringFlag{Name: "pattern", Usage: "glob pattern for matching basenames", Value: "*.gsf"},
					&cli.StringFlag{Name: "config-uri", Usage: "URI or pathname to a TileDB config file"},
					&cli.StringFlag{Name: "out", Usage: "URI or pathname to write the JSON report to, instead of stdout"},
				},
				Action: qaCmd,
			},
			{
				Name:  "archive",
				Usage: "write each file's synthesized pings to a TileDB sidecar array",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uri", Usage: "URI or pathname to search for survey files", Required: true},
					&cli.StringFlag{Name: "pattern", Usage: "glob pattern for matching basenames", Value: "*.gsf"},
					&cli.StringFlag{Name: "config-uri", Usage: "URI or pathname to a TileDB config file"},
					&cli.StringFlag{Name: "archive-dir", Usage: "output directory for per-file TileDB ping arrays", Required: true},
				},
				Action: archiveCmd,
			},
			{
				Name:  "crossings",
				Usage: "detect crossings between a project's sections",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "project-dir", Usage: "project directory", Required: true},
					&cli.Float64Flag{Name: "swath-width", Usage: "assumed swath width in metres", Value: 120},
				},
				Action: crossingsCmd,
			},
			{
				Name:  "adjust",
				Usage: "solve a project's tie graph for per-snav navigation corrections",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "project-dir", Usage: "project directory", Required: true},
				},
				Action: adjustCmd,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(fmt.Errorf("mbnavfuse: %w", err))
	}
}
