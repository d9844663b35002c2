package geoio

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"flightassure/pkg/energy"
	"flightassure/pkg/model"
)

// ReadTelemetry loads a telemetry CSV with the header
// time,vx,vy,vz,altitude,voltage,current. Times are seconds from log start,
// vz follows NED (positive down), altitude is up positive.
func ReadTelemetry(path string) ([]energy.TelemetrySample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrInvalidGeometry, path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: telemetry %s has no data rows", model.ErrInsufficientPath, path)
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	for _, required := range []string{"time", "vx", "vy", "vz", "altitude", "current"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%w: telemetry %s missing column %q", model.ErrInvalidGeometry, path, required)
		}
	}

	samples := make([]energy.TelemetrySample, 0, len(records)-1)
	for i, record := range records[1:] {
		get := func(name string) (float64, error) {
			idx, ok := col[name]
			if !ok || idx >= len(record) {
				return 0, nil
			}
			return strconv.ParseFloat(record[idx], 64)
		}

		var s energy.TelemetrySample
		var parseErr error
		for _, field := range []struct {
			name string
			dst  *float64
		}{
			{"time", &s.Time},
			{"vx", &s.VX},
			{"vy", &s.VY},
			{"vz", &s.VZ},
			{"altitude", &s.Altitude},
			{"voltage", &s.Voltage},
			{"current", &s.Current},
		} {
			if *field.dst, parseErr = get(field.name); parseErr != nil {
				return nil, fmt.Errorf("%w: telemetry %s row %d: %v", model.ErrInvalidGeometry, path, i+2, parseErr)
			}
		}
		samples = append(samples, s)
	}
	return samples, nil
}
