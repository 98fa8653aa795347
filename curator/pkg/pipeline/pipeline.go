// Package pipeline curates landed files into Parquet, archives the originals
// and rebuilds SCD2 history for each table.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/malbeclabs/curate/curator/pkg/catalog"
	"github.com/malbeclabs/curate/curator/pkg/dataset"
	"github.com/malbeclabs/curate/curator/pkg/format"
	"github.com/malbeclabs/curate/curator/pkg/lineage"
	"github.com/malbeclabs/curate/curator/pkg/metrics"
	"github.com/malbeclabs/curate/curator/pkg/schema"
	"github.com/malbeclabs/curate/curator/pkg/storage"
)

const historySuffix = "_history"

// TableLister is implemented by schema sources that can enumerate tables.
type TableLister interface {
	Tables(ctx context.Context, prefix string) ([]string, error)
}

// SkippedFile is a landed file left in place because its contents were
// rejected.
type SkippedFile struct {
	URL string
	Err error
}

// Result summarises one table run.
type Result struct {
	RunID         string
	Table         string
	FilesFound    int
	FilesCurated  int
	FilesSkipped  int
	FilesArchived int
	RowsCurated   int
	HistoryRows   int
	Skipped       []SkippedFile
	CuratedURLs   []string
	HistoryURL    string
	Duration      time.Duration
}

type Pipeline struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{log: cfg.Logger, cfg: cfg}, nil
}

// Tables returns the explicit table list when given, otherwise the tables
// whose metadata matches prefix.
func (p *Pipeline) Tables(ctx context.Context, tables []string, prefix string) ([]string, error) {
	if len(tables) > 0 {
		return tables, nil
	}
	lister, ok := p.cfg.Schemas.(TableLister)
	if !ok {
		return nil, errors.New("schema source cannot list tables, an explicit table list is required")
	}
	found, err := lister.Tables(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no tables found with prefix %q", prefix)
	}
	return found, nil
}

// RunAll runs every table in order. With FailFast the first failure stops the
// run; otherwise failures are collected and returned together.
func (p *Pipeline) RunAll(ctx context.Context, tables []string) ([]*Result, error) {
	var (
		results []*Result
		errs    []error
	)
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := p.Run(ctx, table)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("table %s: %w", table, err))
			if p.cfg.FailFast {
				break
			}
		}
	}
	return results, errors.Join(errs...)
}

// Run curates the landed files of one table. The returned Result is non-nil
// even when an error is returned.
func (p *Pipeline) Run(ctx context.Context, table string) (*Result, error) {
	startedAt := p.cfg.Clock.Now()
	res := &Result{RunID: uuid.NewString(), Table: table}
	log := p.log.With("table", table, "run_id", res.RunID)

	log.Info("curation run started")
	err := p.run(ctx, log, table, startedAt, res)
	res.Duration = p.cfg.Clock.Since(startedAt)

	status := "success"
	if err != nil {
		status = "error"
		log.Error("curation run failed", "error", err)
	} else {
		log.Info("curation run completed",
			"files_found", res.FilesFound,
			"files_curated", res.FilesCurated,
			"files_skipped", res.FilesSkipped,
			"rows", res.RowsCurated,
			"history_rows", res.HistoryRows,
			"duration", res.Duration)
	}
	metrics.RunsTotal.WithLabelValues(table, status).Inc()
	metrics.RunDuration.WithLabelValues(table).Observe(res.Duration.Seconds())

	p.recordRun(ctx, log, res, startedAt, err)
	return res, err
}

func (p *Pipeline) recordRun(ctx context.Context, log *slog.Logger, res *Result, startedAt time.Time, runErr error) {
	if p.cfg.Catalog == nil {
		return
	}
	rec := catalog.RunRecord{
		RunID:         res.RunID,
		Table:         res.Table,
		StartedAt:     startedAt,
		FinishedAt:    startedAt.Add(res.Duration),
		FilesFound:    res.FilesFound,
		FilesCurated:  res.FilesCurated,
		FilesSkipped:  res.FilesSkipped,
		FilesArchived: res.FilesArchived,
		RowsCurated:   res.RowsCurated,
		HistoryRows:   res.HistoryRows,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	// Recorded even when ctx was cancelled so interrupted runs are visible.
	if err := p.cfg.Catalog.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn("failed to record run", "error", err)
	}
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, table string, startedAt time.Time, res *Result) error {
	base, err := p.cfg.Schemas.Get(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to get schema: %w", err)
	}
	full, err := lineage.Schema(base)
	if err != nil {
		return err
	}

	landingPrefix := storage.Folder(storage.JoinPath(p.cfg.LandingFolder, table))
	objs, err := p.cfg.Store.List(ctx, landingPrefix)
	if err != nil {
		return fmt.Errorf("failed to list landed files: %w", err)
	}
	res.FilesFound = len(objs)
	if len(objs) == 0 {
		log.Info("no landed files")
	}

	files, err := p.loadLanded(ctx, log, table, full, objs, startedAt)
	if err != nil {
		return err
	}

	names := curatedNames(landingPrefix, files)
	var curated []landedFile
	for i, f := range files {
		if f.err != nil {
			res.FilesSkipped++
			res.Skipped = append(res.Skipped, SkippedFile{URL: f.obj.URL, Err: f.err})
			continue
		}
		url, err := p.writeCurated(ctx, table, names[i], f)
		if err != nil {
			return err
		}
		res.FilesCurated++
		res.RowsCurated += f.batch.Rows()
		res.CuratedURLs = append(res.CuratedURLs, url)
		metrics.FilesProcessedTotal.WithLabelValues(table, "curated").Inc()
		metrics.RowsCuratedTotal.WithLabelValues(table).Add(float64(f.batch.Rows()))
		curated = append(curated, f)
	}

	if len(curated) > 0 {
		location := storage.Folder(storage.JoinPath(p.cfg.CuratedFolder, table))
		if err := p.register(ctx, table, location, full, res.RunID, lineage.ColumnStartDatetime); err != nil {
			return err
		}
	}

	for _, f := range curated {
		rel := strings.TrimPrefix(f.obj.URL, landingPrefix)
		dst := storage.JoinPath(p.cfg.RawHistFolder, table, rel)
		if err := storage.Move(ctx, p.cfg.Store, f.obj.URL, dst); err != nil {
			return fmt.Errorf("failed to archive %s: %w", f.obj.URL, err)
		}
		res.FilesArchived++
		log.Debug("archived landed file", "src", f.obj.URL, "dst", dst)
	}

	if !p.cfg.SCD2Enabled {
		return nil
	}
	return p.buildHistory(ctx, log, table, full, res)
}

type landedFile struct {
	obj   storage.Object
	batch *dataset.Batch
	// err is set when the file was rejected for its contents.
	err error
}

// loadLanded fetches, decodes, stamps and reconciles landed files with at
// most MaxConcurrency in flight. Results keep the order of objs.
func (p *Pipeline) loadLanded(ctx context.Context, log *slog.Logger, table string, s *schema.Schema, objs []storage.Object, taskTS time.Time) ([]landedFile, error) {
	files := make([]landedFile, len(objs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, obj := range objs {
		files[i].obj = obj
		g.Go(func() error {
			b, err := p.loadFile(gCtx, obj, s, taskTS)
			if err == nil {
				files[i].batch = b
				return nil
			}
			kind, rejected := rejectionKind(err)
			if !rejected {
				return err
			}
			metrics.FilesProcessedTotal.WithLabelValues(table, "skipped").Inc()
			metrics.ReconcileErrorsTotal.WithLabelValues(table, kind).Inc()
			if p.cfg.FailFast {
				return fmt.Errorf("rejected %s: %w", obj.URL, err)
			}
			log.Warn("skipping landed file", "url", obj.URL, "reason", kind, "error", err)
			files[i].err = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// decodeError marks failures to parse a landed file.
type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (p *Pipeline) loadFile(ctx context.Context, obj storage.Object, s *schema.Schema, taskTS time.Time) (*dataset.Batch, error) {
	f, err := format.Detect(obj.URL)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := p.cfg.Store.Get(ctx, obj.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", obj.URL, err)
	}
	raw, err := format.Decode(ctx, f, data)
	if err != nil {
		return nil, &decodeError{err: err}
	}
	_, key, err := storage.ParseURL(obj.URL)
	if err != nil {
		return nil, err
	}
	stamped, err := lineage.Apply(raw, lineage.Stamp{
		StartDatetime: p.cfg.ExtractionTS,
		ImageTag:      p.cfg.ImageVersion,
		RawFilename:   key,
		TaskTimestamp: taskTS,
	})
	if err != nil {
		return nil, err
	}
	return dataset.Reconcile(stamped, s)
}

// rejectionKind classifies errors caused by file contents. Any other error
// aborts the run.
func rejectionKind(err error) (string, bool) {
	var (
		ife *dataset.InvalidFormatError
		tce *dataset.TypeCoercionError
		de  *decodeError
	)
	switch {
	case errors.As(err, &ife):
		return "invalid_format", true
	case errors.As(err, &tce):
		return "type_coercion", true
	case errors.As(err, &de):
		return "decode", true
	case errors.Is(err, format.ErrUnsupportedFormat):
		return "unsupported_format", true
	}
	return "", false
}

// curatedNames picks the curated object name of every loaded file. A file
// keeps its stem unless another file of the run shares it, in which case the
// name is built from its path under the landing folder. Names are unique
// within the run.
func curatedNames(landingPrefix string, files []landedFile) []string {
	stems := make([]string, len(files))
	counts := make(map[string]int, len(files))
	for i, f := range files {
		if f.err != nil {
			continue
		}
		stems[i] = format.Stem(f.obj.URL)
		counts[stems[i]]++
	}

	names := make([]string, len(files))
	taken := make(map[string]bool, len(files))
	for i, f := range files {
		if f.err != nil {
			continue
		}
		name := stems[i]
		if counts[name] > 1 {
			rel := strings.TrimPrefix(f.obj.URL, landingPrefix)
			name = strings.NewReplacer("/", "_", ".", "_").Replace(rel)
		}
		base := name
		for n := 2; taken[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		taken[name] = true
		names[i] = name
	}
	return names
}

func (p *Pipeline) writeCurated(ctx context.Context, table, name string, f landedFile) (string, error) {
	data, err := format.EncodeParquet(f.batch)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", f.obj.URL, err)
	}
	partition := lineage.ColumnStartDatetime + "=" + lineage.PartitionValue(p.cfg.ExtractionTS)
	url := storage.JoinPath(p.cfg.CuratedFolder, table, partition, name+".parquet")
	if err := p.cfg.Store.Put(ctx, url, data); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", url, err)
	}
	return url, nil
}

func (p *Pipeline) register(ctx context.Context, name, location string, s *schema.Schema, runID string, partitionKeys ...string) error {
	if p.cfg.Catalog == nil {
		return nil
	}
	t := catalog.TableFromSchema(p.cfg.DatabaseName, name, location, s, partitionKeys...)
	t.RunID = runID
	if err := p.cfg.Catalog.Register(ctx, t); err != nil {
		return fmt.Errorf("failed to register %s: %w", name, err)
	}
	return nil
}

// buildHistory rebuilds the full SCD2 history of a table from every curated
// file, ordered by extraction timestamp.
func (p *Pipeline) buildHistory(ctx context.Context, log *slog.Logger, table string, s *schema.Schema, res *Result) error {
	curatedPrefix := storage.Folder(storage.JoinPath(p.cfg.CuratedFolder, table))
	objs, err := p.cfg.Store.List(ctx, curatedPrefix)
	if err != nil {
		return fmt.Errorf("failed to list curated files: %w", err)
	}

	batches := make([]dataset.VersionedBatch, len(objs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, obj := range objs {
		g.Go(func() error {
			vb, err := p.loadCurated(gCtx, obj, s)
			if err != nil {
				return err
			}
			batches[i] = vb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	batches = slices.DeleteFunc(batches, func(vb dataset.VersionedBatch) bool { return vb.Batch == nil })
	if len(batches) == 0 {
		log.Info("no curated data, history not built")
		return nil
	}
	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].ValidFrom.Before(batches[j].ValidFrom)
	})

	h, err := dataset.ApplySCD2(batches, p.cfg.EntityKey)
	if err != nil {
		return fmt.Errorf("failed to build history: %w", err)
	}
	out, err := h.ToBatch()
	if err != nil {
		return fmt.Errorf("failed to flatten history: %w", err)
	}
	data, err := format.EncodeParquet(out)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	name := table + historySuffix
	url := storage.JoinPath(p.cfg.CuratedFolder, name, name+".parquet")
	if err := p.cfg.Store.Put(ctx, url, data); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	res.HistoryURL = url
	res.HistoryRows = len(h.Records)
	metrics.HistoryRowsTotal.WithLabelValues(table).Add(float64(len(h.Records)))

	if err := p.register(ctx, name, storage.Folder(storage.JoinPath(p.cfg.CuratedFolder, name)), out.Schema(), res.RunID); err != nil {
		return err
	}

	if p.cfg.HistoryWriter != nil {
		conn, err := p.cfg.ClickHouse.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to get connection: %w", err)
		}
		if err := p.cfg.HistoryWriter.Write(ctx, conn, table, out); err != nil {
			return fmt.Errorf("failed to write history to clickhouse: %w", err)
		}
	}

	log.Info("history rebuilt", "batches", len(batches), "rows", len(h.Records), "url", url)
	return nil
}

// loadCurated reads one curated file. Files with no rows yield a zero
// VersionedBatch.
func (p *Pipeline) loadCurated(ctx context.Context, obj storage.Object, s *schema.Schema) (dataset.VersionedBatch, error) {
	if !strings.HasSuffix(obj.URL, ".parquet") {
		return dataset.VersionedBatch{}, nil
	}
	data, err := p.cfg.Store.Get(ctx, obj.URL)
	if err != nil {
		return dataset.VersionedBatch{}, fmt.Errorf("failed to read %s: %w", obj.URL, err)
	}
	raw, err := format.DecodeParquet(ctx, data)
	if err != nil {
		return dataset.VersionedBatch{}, fmt.Errorf("failed to decode %s: %w", obj.URL, err)
	}
	if raw.Rows() == 0 {
		return dataset.VersionedBatch{}, nil
	}
	b, err := dataset.Reconcile(raw, s)
	if err != nil {
		return dataset.VersionedBatch{}, fmt.Errorf("failed to reconcile %s: %w", obj.URL, err)
	}
	validFrom, ok := b.Value(lineage.ColumnStartDatetime, 0).(time.Time)
	if !ok {
		return dataset.VersionedBatch{}, fmt.Errorf("curated file %s has no %s", obj.URL, lineage.ColumnStartDatetime)
	}
	return dataset.VersionedBatch{Batch: b, ValidFrom: validFrom}, nil
}
