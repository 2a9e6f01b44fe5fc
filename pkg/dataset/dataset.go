// Package dataset ingests whitespace-delimited point files: one point per
// line as `x y [z] [weight]`, with a default weight of 1.
package dataset

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jihwankim/range-sampler/pkg/geo"
)

// ErrInvalidInput marks unparseable lines, wrong field counts, and negative
// weights. Ingestion aborts on the first occurrence.
var ErrInvalidInput = fmt.Errorf("dataset: invalid input")

// Load reads the whole file into memory, validating that every point
// quantises onto the fixed grid. For dims == 2 each line holds 2 or 3 fields
// (the third is the weight); for dims == 3, 3 or 4 fields.
func Load(path string, dims int) ([]geo.WPoint, error) {
	if dims != 2 && dims != 3 {
		return nil, fmt.Errorf("dataset: unsupported dimensionality %d", dims)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	var points []geo.WPoint
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		wp, err := parseLine(line, dims)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidInput, lineNo, err)
		}
		if err := geo.CheckDomain(wp.P, dims); err != nil {
			return nil, fmt.Errorf("dataset: line %d: %w", lineNo, err)
		}
		points = append(points, wp)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("points", len(points)).Int("dims", dims).Msg("dataset loaded")
	return points, nil
}

func parseLine(line string, dims int) (geo.WPoint, error) {
	fields := strings.Fields(line)
	if len(fields) < dims || len(fields) > dims+1 {
		return geo.WPoint{}, fmt.Errorf("expected %d or %d fields, got %d", dims, dims+1, len(fields))
	}
	coords := make([]float64, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return geo.WPoint{}, fmt.Errorf("field %d: %v", i+1, err)
		}
		coords[i] = v
	}
	wp := geo.WPoint{P: geo.Point{X: coords[0], Y: coords[1]}, Weight: 1}
	if dims == 3 {
		wp.P.Z = coords[2]
	}
	if len(fields) == dims+1 {
		wp.Weight = coords[dims]
		if wp.Weight < 0 {
			return geo.WPoint{}, fmt.Errorf("negative weight %v", wp.Weight)
		}
	}
	return wp, nil
}
