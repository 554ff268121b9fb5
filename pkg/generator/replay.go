package generator

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/crtx-sg/iotix/pkg/model"
)

// replayGenerator replays a recorded column of values from a CSV or
// JSON-lines file, looping from the top or holding the final value once
// the file is exhausted depending on spec.Loop.
type replayGenerator struct {
	values []interface{}
	idx    int
	loop   bool
}

func newReplayGenerator(spec model.GeneratorSpec) (*replayGenerator, error) {
	values, err := loadReplayValues(spec.FilePath, spec.Column)
	if err != nil {
		return nil, fmt.Errorf("replay generator: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("replay generator: %s contains no values", spec.FilePath)
	}
	return &replayGenerator{values: values, loop: spec.Loop}, nil
}

func (g *replayGenerator) Next() (interface{}, error) {
	if g.idx >= len(g.values) {
		if g.loop {
			g.idx = 0
		} else {
			return g.values[len(g.values)-1], nil
		}
	}
	v := g.values[g.idx]
	g.idx++
	return v, nil
}

func loadReplayValues(path, column string) ([]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSVColumn(data, column)
	default:
		return loadJSONLines(data, column)
	}
}

func loadCSVColumn(data []byte, column string) ([]interface{}, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	colIdx := 0
	rows := records
	if column != "" {
		header := records[0]
		colIdx = -1
		for i, name := range header {
			if name == column {
				colIdx = i
				break
			}
		}
		if colIdx == -1 {
			return nil, fmt.Errorf("column %q not found in header", column)
		}
		rows = records[1:]
	}

	values := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		if colIdx >= len(row) {
			continue
		}
		values = append(values, parseScalar(row[colIdx]))
	}
	return values, nil
}

func loadJSONLines(data []byte, column string) ([]interface{}, error) {
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	values := make([]interface{}, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if column == "" {
			var v interface{}
			if err := json.Unmarshal([]byte(line), &v); err != nil {
				return nil, err
			}
			values = append(values, v)
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, err
		}
		values = append(values, obj[column])
	}
	return values, nil
}

func parseScalar(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
