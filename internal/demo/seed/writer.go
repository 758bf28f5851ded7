package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

var ErrOutputExists = errors.New("output file already exists")

// File describes one written table.
type File struct {
	Table string
	Path  string
	Rows  int
}

// WriteDir writes ds as <table>.parquet files under dir. Existing files are
// only replaced when overwrite is set.
func WriteDir(dir string, ds Dataset, overwrite bool) ([]File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	writers := []struct {
		table string
		write func(path string) (int, error)
	}{
		{"amc_instances", writeTable(ds.Instances)},
		{"amc_instance_advertisers", writeTable(ds.InstanceAdvertisers)},
		{"amc_executions", writeTable(ds.Executions)},
		{"amc_time_to_conversion", writeTable(ds.TimeToConversion)},
		{"amc_ntb_gateway", writeTable(ds.Gateway)},
		{"amc_new_to_brand", writeTable(ds.NewToBrand)},
		{"amc_sponsored_ads_dsp_overlap", writeTable(ds.Overlap)},
		{"amc_lifestyle_size", writeTable(ds.Lifestyle)},
		{"ads_report", writeTable(ds.AdsReport)},
	}

	files := make([]File, 0, len(writers))
	for _, w := range writers {
		path := filepath.Join(dir, w.table+".parquet")
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				return files, fmt.Errorf("%w: %s", ErrOutputExists, path)
			}
		}
		n, err := w.write(path)
		if err != nil {
			return files, fmt.Errorf("write %s: %w", w.table, err)
		}
		files = append(files, File{Table: w.table, Path: path, Rows: n})
	}
	return files, nil
}

func writeTable[T any](rows []T) func(string) (int, error) {
	return func(path string) (int, error) {
		tmp := path + ".tmp"
		f, err := os.Create(tmp)
		if err != nil {
			return 0, fmt.Errorf("create file: %w", err)
		}
		writer := parquet.NewGenericWriter[T](f)
		if _, err := writer.Write(rows); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return 0, fmt.Errorf("write parquet rows: %w", err)
		}
		if err := writer.Close(); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return 0, fmt.Errorf("close parquet writer: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(tmp)
			return 0, fmt.Errorf("close file: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return 0, fmt.Errorf("rename file: %w", err)
		}
		return len(rows), nil
	}
}

// Run generates the dataset described by cfg and writes it to cfg.OutputDir.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) ([]File, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds := NewGenerator(cfg).Generate()
	files, err := WriteDir(cfg.OutputDir, ds, cfg.Overwrite)
	if err != nil {
		return files, err
	}
	for _, file := range files {
		logger.Info("demo table written", slog.String("table", file.Table), slog.String("path", file.Path), slog.Int("rows", file.Rows))
	}
	return files, nil
}
