// Command ingest runs the enrichment pipeline offline: it loads facility
// polygons and staged courts from GeoJSON, matches and clusters them, and
// writes a store snapshot the server can start from.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/opencourts/courtmap/internal/adapters/repository"
	app "github.com/opencourts/courtmap/internal/app"
	"github.com/opencourts/courtmap/internal/domain/model"
	"github.com/opencourts/courtmap/pkg/logger"
)

func main() {
	facilitiesPath := flag.String("facilities", "", "GeoJSON FeatureCollection of facility polygons")
	courtsPath := flag.String("courts", "", "GeoJSON FeatureCollection of staged courts")
	outPath := flag.String("out", "courts.snap", "snapshot output path")
	flag.Parse()

	if err := run(*facilitiesPath, *courtsPath, *outPath); err != nil {
		os.Stderr.WriteString("ingest failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(facilitiesPath, courtsPath, outPath string) error {
	if facilitiesPath == "" || courtsPath == "" {
		return fmt.Errorf("both -facilities and -courts are required")
	}
	if err := logger.Init(); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Get()
	ctx := context.Background()

	facilities, err := loadFacilities(facilitiesPath)
	if err != nil {
		return fmt.Errorf("load facilities: %w", err)
	}
	courts, err := loadCourts(ctx, courtsPath, log)
	if err != nil {
		return fmt.Errorf("load courts: %w", err)
	}

	store := repository.NewMemStore(repository.WithLogger(log))
	svc := app.New(app.WithLogger(log), app.WithStore(store))

	sum, err := svc.RunPipeline(ctx, facilities, courts)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}
	log.Info(ctx, "ingest complete",
		logger.Int("facilities", len(facilities)),
		logger.Int("courts", sum.Courts),
		logger.Int("matched", sum.Matching.Matched),
		logger.Int("unmatched", sum.Matching.Unmatched),
		logger.Int("clusters", sum.Clusters),
		logger.Int("aggregates", sum.Aggregates),
	)

	return store.SaveSnapshot(ctx, outPath)
}

func loadFacilities(path string) ([]model.Facility, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, err
	}

	out := make([]model.Facility, 0, len(fc.Features))
	for i, f := range fc.Features {
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok {
			// Matching is polygon containment; other geometries have no use.
			continue
		}
		out = append(out, model.Facility{
			ID:       uint64(i + 1),
			Name:     f.Properties.MustString("name", ""),
			Boundary: poly,
		})
	}
	return out, nil
}

func loadCourts(ctx context.Context, path string, log logger.Logger) ([]*model.Court, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Court, 0, len(fc.Features))
	for i, f := range fc.Features {
		c := &model.Court{
			ID:       uint64(f.Properties.MustInt("id", i+1)),
			SourceID: f.Properties.MustString("source_id", ""),
			Name:     f.Properties.MustString("name", ""),
			School:   f.Properties.MustBool("school", false),
		}

		switch g := f.Geometry.(type) {
		case orb.Point:
			c.Centroid = g
		case orb.Polygon:
			c.Boundary = g
			c.Centroid, _ = planarCentroid(g)
		default:
			continue
		}

		sport, err := model.ParseSport(f.Properties.MustString("sport", ""))
		if err != nil {
			log.Warn(ctx, "skipping feature with unrecognized sport",
				logger.Int("feature", i),
				logger.String("sourceID", c.SourceID),
				logger.Error(err),
			)
			continue
		}
		c.Sport = sport

		if raw := f.Properties.MustString("surface", ""); raw != "" {
			surface, err := model.ParseSurface(raw)
			if err == nil {
				c.Surface = &surface
			}
		}
		c.Public, _ = model.ParseTriState(f.Properties.MustString("public", ""))
		c.Lights, _ = model.ParseTriState(f.Properties.MustString("lights", ""))

		out = append(out, c)
	}
	return out, nil
}

func readFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return geojson.UnmarshalFeatureCollection(raw)
}

// planarCentroid returns the mean of the outer ring vertices, good enough
// as a representative point for containment and bbox tests.
func planarCentroid(p orb.Polygon) (orb.Point, bool) {
	if len(p) == 0 || len(p[0]) == 0 {
		return orb.Point{}, false
	}
	ring := p[0]
	var sumLon, sumLat float64
	for _, pt := range ring {
		sumLon += pt.Lon()
		sumLat += pt.Lat()
	}
	n := float64(len(ring))
	return orb.Point{sumLon / n, sumLat / n}, true
}
