package ingest

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lepinkainen/alexandria/internal/catalog"
	"github.com/lepinkainen/alexandria/internal/dump"
	apperrors "github.com/lepinkainen/alexandria/internal/errors"
	"github.com/lepinkainen/alexandria/internal/merge"
	"github.com/lepinkainen/alexandria/internal/progress"
)

// ImportFile runs a bulk import of a dump file. Gzip-compressed dumps are
// decompressed transparently; their progress ratio tracks the compressed
// offset. want restricts the import to one family; FamilyUnknown accepts
// any recognized segment.
func (o *Orchestrator) ImportFile(ctx context.Context, path string, want catalog.Family) Report {
	f, err := os.Open(path)
	if err != nil {
		return Report{Status: StatusError, Err: fmt.Errorf("failed to open dump file: %w", err)}
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return Report{Status: StatusError, Err: fmt.Errorf("failed to stat dump file: %w", err)}
	}
	if !strings.HasSuffix(path, ".gz") {
		return o.ImportDump(ctx, f, info.Size(), want)
	}
	counter := &countingReader{r: f}
	gz, err := gzip.NewReader(counter)
	if err != nil {
		return Report{Status: StatusCorrupted, Err: apperrors.NewCorruptedError(fmt.Sprintf("not a gzip stream: %v", err))}
	}
	defer func() { _ = gz.Close() }()
	parser := dump.NewParser(gz, 0)
	ratio := func() float64 {
		if info.Size() == 0 {
			return 0
		}
		return float64(counter.n) / float64(info.Size())
	}
	return o.runImport(ctx, parser, ratio, want)
}

// ImportDump runs a bulk import over an uncompressed dump stream of a
// known size.
func (o *Orchestrator) ImportDump(ctx context.Context, r io.Reader, size int64, want catalog.Family) Report {
	parser := dump.NewParser(r, size)
	ratio := func() float64 {
		if parser.Size() == 0 {
			return 0
		}
		return float64(parser.Offset()) / float64(parser.Size())
	}
	return o.runImport(ctx, parser, ratio, want)
}

// runImport walks the dump stream segment by segment: detect a table
// definition, resolve its family, prepare indexes and the presence index,
// locate the data section, and hand the decoded rows to the merge engine.
// Unrecognized segments are skipped; a required-family mismatch is a hard
// error.
func (o *Orchestrator) runImport(ctx context.Context, parser *dump.Parser, ratio func() float64, want catalog.Family) Report {
	low, err := o.probeDiskSpace()
	if err != nil {
		return Report{Status: StatusError, Err: err}
	}
	if low {
		return Report{Status: StatusLowDiskSpace}
	}

	run := &importRun{parser: parser}
	indexes := make(map[catalog.Family]*merge.PresenceIndex)
	var added, updated int64
	family := catalog.FamilyUnknown
	segments := 0

	for {
		if err := ctx.Err(); err != nil {
			return reportErr(family, added, updated, err)
		}
		line, err := run.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return reportErr(family, added, updated, err)
		}
		if line.Kind != dump.KindTableDef {
			continue
		}
		def, err := parser.TableDefinition(line)
		if err != nil {
			return reportErr(family, added, updated, err)
		}
		detected := matchDefinition(def)
		if detected == catalog.FamilyUnknown {
			slog.Info("Skipping unrecognized table segment", "table", def.Name)
			continue
		}
		if want != catalog.FamilyUnknown && detected != want {
			return Report{
				Status: StatusError, Family: detected, Added: added, Updated: updated,
				Err: fmt.Errorf("dump contains %s data, expected %s", detected, want),
			}
		}
		family = detected
		o.sink.Publish(progress.TableFound{Family: family, Table: def.Name})

		if err := o.ensureIndexes(ctx, family); err != nil {
			return reportErr(family, added, updated, err)
		}
		idx, ok := indexes[family]
		if !ok {
			idx, err = merge.BuildPresenceIndex(ctx, o.store, family)
			if err != nil {
				return reportErr(family, added, updated, err)
			}
			indexes[family] = idx
		}

		if err := run.seekDataSection(ctx, def.Name); err != nil {
			return reportErr(family, added, updated, err)
		}

		src := newDumpSource(run, def, family)
		res, err := merge.Run(ctx, src, idx, o.store, family, o.sink, merge.Options{
			Checkpoint:        o.checkpoint,
			LowSpaceThreshold: o.lowSpace,
			Ratio:             ratio,
		})
		added += res.Added
		updated += res.Updated
		if err != nil {
			return reportErr(family, added, updated, err)
		}
		if res.LowDiskSpace {
			return Report{Status: StatusLowDiskSpace, Family: family, Added: added, Updated: updated}
		}
		segments++
	}

	if segments == 0 {
		return Report{
			Status: StatusDataNotFound,
			Err:    apperrors.NewDataNotFoundError("recognized table definition"),
		}
	}
	o.sink.Publish(progress.Summary{Family: family, Added: added, Updated: updated})
	return Report{Status: StatusCompleted, Family: family, Added: added, Updated: updated}
}

func matchDefinition(def *dump.TableDef) catalog.Family {
	columns := make([]catalog.ParsedColumn, len(def.Columns))
	for i, col := range def.Columns {
		columns[i] = catalog.ParsedColumn{Name: col.Name, Type: col.Type}
	}
	return catalog.Match(def.Name, columns)
}

// importRun tracks the read position in the dump stream and supports
// handing one classified line back after lookahead.
type importRun struct {
	parser  *dump.Parser
	pending *dump.Line
}

func (r *importRun) next() (dump.Line, error) {
	if r.pending != nil {
		line := *r.pending
		r.pending = nil
		return line, nil
	}
	return r.parser.Next()
}

func (r *importRun) push(line dump.Line) {
	r.pending = &line
}

// seekDataSection advances to the first data-insertion line of the given
// table. Reaching another table definition or the end of the stream first
// means the expected data section never appeared.
func (r *importRun) seekDataSection(ctx context.Context, table string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := r.next()
		if err == io.EOF {
			return apperrors.NewDataNotFoundError(fmt.Sprintf("data section for table %s", table))
		}
		if err != nil {
			return err
		}
		switch {
		case line.Kind == dump.KindInsert && strings.EqualFold(line.Table, table):
			r.push(line)
			return nil
		case line.Kind == dump.KindTableDef:
			r.push(line)
			return apperrors.NewDataNotFoundError(fmt.Sprintf("data section for table %s", table))
		}
	}
}

// dumpSource feeds the merge engine one decoded record per value tuple,
// pulling insertion lines until the table's data section ends. Per-row
// decode faults are logged and skipped; they never poison the stream.
type dumpSource struct {
	run     *importRun
	def     *dump.TableDef
	columns []catalog.ParsedColumn
	family  catalog.Family
	buf     []catalog.Object
}

func newDumpSource(run *importRun, def *dump.TableDef, family catalog.Family) *dumpSource {
	columns := make([]catalog.ParsedColumn, len(def.Columns))
	for i, col := range def.Columns {
		columns[i] = catalog.ParsedColumn{Name: col.Name, Type: col.Type}
	}
	return &dumpSource{run: run, def: def, columns: columns, family: family}
}

func (s *dumpSource) Next(ctx context.Context) (catalog.Object, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(s.buf) > 0 {
			obj := s.buf[0]
			s.buf = s.buf[1:]
			return obj, nil
		}
		line, err := s.run.next()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		switch {
		case line.Kind == dump.KindInsert && strings.EqualFold(line.Table, s.def.Name):
			s.buf = s.decode(line)
		case line.Kind == dump.KindTableDef,
			line.Kind == dump.KindInsert:
			// another segment begins; hand the line back and end this one
			s.run.push(line)
			return nil, io.EOF
		}
	}
}

func (s *dumpSource) decode(line dump.Line) []catalog.Object {
	tuples, err := dump.ParseInsertTuples(line.Text)
	if err != nil {
		slog.Warn("Skipping malformed insert statement", "table", s.def.Name, "error", err)
		return nil
	}
	objects := make([]catalog.Object, 0, len(tuples))
	for _, tuple := range tuples {
		values := make([]catalog.RowValue, len(tuple))
		for i, v := range tuple {
			values[i] = catalog.RowValue{Raw: v.Raw, Null: v.Null}
		}
		obj, err := catalog.DecodeRow(s.family, s.columns, values)
		if err != nil {
			slog.Warn("Skipping malformed row", "table", s.def.Name, "error", err)
			continue
		}
		objects = append(objects, obj)
	}
	return objects
}

// countingReader counts bytes consumed from the underlying reader.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
