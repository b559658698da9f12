package coverage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rohankatakam/timpact/internal/errors"
	"github.com/rohankatakam/timpact/internal/models"
)

// ObservationFileExt is the extension of files written by forked test processes
const ObservationFileExt = ".jsonl"

// ReadObservations decodes a stream of JSON observations, one per line
func ReadObservations(r io.Reader) ([]models.CoverageObservation, error) {
	dec := json.NewDecoder(r)
	var out []models.CoverageObservation
	for {
		var obs models.CoverageObservation
		err := dec.Decode(&obs)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("decode observation %d: %w", len(out)+1, err)
		}
		out = append(out, obs)
	}
}

// WriteObservation appends one observation line to w
func WriteObservation(w io.Writer, obs models.CoverageObservation) error {
	return json.NewEncoder(w).Encode(obs)
}

// IngestDir records every observation found in the observation files of dir
// and returns how many were recorded. Files are read in name order.
func IngestDir(ctx context.Context, dir string, rec Recorder) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+ObservationFileExt))
	if err != nil {
		return 0, errors.FileSystemErrorf(err, "list observation files in %s", dir)
	}
	sort.Strings(paths)

	count := 0
	for _, path := range paths {
		n, err := ingestFile(ctx, path, rec)
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

func ingestFile(ctx context.Context, path string, rec Recorder) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.FileSystemErrorf(err, "open observation file %s", path)
	}
	defer f.Close()

	observations, err := ReadObservations(f)
	if err != nil {
		return 0, errors.FileSystemErrorf(err, "read observation file %s", path)
	}

	for i, obs := range observations {
		if err := rec.Record(ctx, obs); err != nil {
			return i, err
		}
	}
	return len(observations), nil
}
