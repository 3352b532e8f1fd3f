// Package codeimport loads large discount-code lists into an event.
//
// Lists are plain text or gzip files with one code per line. Codes repeated
// across files are detected with per-file bloom filters so each code is
// submitted to the store once, without holding every code in memory.
package codeimport

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/eventpass/internal/domain/promo"
)

const (
	minCodeLen    = 3
	maxCodeLen    = 64
	progressEvery = 1_000_000
)

// Store persists imported codes. Codes that already exist are skipped and
// excluded from the returned count.
type Store interface {
	InsertDiscountCodes(ctx context.Context, codes []promo.DiscountCode) (int64, error)
}

// Config controls an import run.
type Config struct {
	Files []string
	// Template is copied into every imported code. Its Code is ignored.
	Template promo.DiscountCode

	BatchSize         int     // default 1000
	ExpectedCodes     uint    // per file, sizes the bloom filters; default 1e6
	FalsePositiveRate float64 // default 0.001
	Logger            *zap.Logger
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.ExpectedCodes == 0 {
		c.ExpectedCodes = 1_000_000
	}
	if c.FalsePositiveRate <= 0 {
		c.FalsePositiveRate = 0.001
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Stats summarizes a run.
type Stats struct {
	Lines     int64 // code lines read, excluding blanks and comments
	Invalid   int64
	Repeated  int64 // codes that may appear in more than one file
	Submitted int64
	Inserted  int64
}

// Skipped reports submitted codes the store already had.
func (s Stats) Skipped() int64 { return s.Submitted - s.Inserted }

type counters struct {
	lines, invalid, repeated, submitted, inserted atomic.Int64
}

func (c *counters) stats() Stats {
	return Stats{
		Lines:     c.lines.Load(),
		Invalid:   c.invalid.Load(),
		Repeated:  c.repeated.Load(),
		Submitted: c.submitted.Load(),
		Inserted:  c.inserted.Load(),
	}
}

// Importer runs the two-pass import.
type Importer struct {
	store Store
	cfg   Config
	lg    *zap.Logger
}

// New validates cfg and returns an Importer writing to store.
func New(store Store, cfg Config) (*Importer, error) {
	cfg.setDefaults()
	switch {
	case len(cfg.Files) == 0:
		return nil, errors.New("no input files")
	case cfg.Template.AccountID == 0 || cfg.Template.EventID == 0:
		return nil, errors.New("template must name an account and event")
	}
	return &Importer{store: store, cfg: cfg, lg: cfg.Logger}, nil
}

// Run imports every file. Pass 1 builds a bloom filter per file. Pass 2
// streams the files again: codes no other filter knows are written at once,
// the rest are merged and written after all files are read.
func (i *Importer) Run(ctx context.Context) (Stats, error) {
	var c counters
	for _, f := range i.cfg.Files {
		if _, err := os.Stat(f); err != nil {
			return c.stats(), errors.Wrapf(err, "check %s", f)
		}
	}

	i.lg.Info("Pass 1: building bloom filters", zap.Int("files", len(i.cfg.Files)))
	filters, err := i.buildFilters(ctx)
	if err != nil {
		return c.stats(), errors.Wrap(err, "build bloom filters")
	}

	i.lg.Info("Pass 2: importing codes")
	codes := make(chan string, i.cfg.BatchSize)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return i.write(gCtx, codes, &c)
	})
	g.Go(func() error {
		defer close(codes)
		repeated, err := i.scan(gCtx, filters, codes, &c)
		if err != nil {
			return err
		}
		c.repeated.Store(int64(len(repeated)))
		for _, code := range repeated {
			if err := send(gCtx, codes, code); err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return c.stats(), err
	}

	st := c.stats()
	i.lg.Info("Import complete",
		zap.Int64("lines", st.Lines),
		zap.Int64("invalid", st.Invalid),
		zap.Int64("repeated", st.Repeated),
		zap.Int64("inserted", st.Inserted),
		zap.Int64("skipped", st.Skipped()),
	)
	return st, nil
}

func (i *Importer) buildFilters(ctx context.Context) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(i.cfg.Files))
	g, ctx := errgroup.WithContext(ctx)
	for idx, path := range i.cfg.Files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(i.cfg.ExpectedCodes, i.cfg.FalsePositiveRate)
			var n int64
			err := streamFile(ctx, path, func(_ int, line string) {
				if code, ok := parseCode(line); ok {
					filter.AddString(code)
					n++
				}
			})
			if err != nil {
				return errors.Wrapf(err, "file %s", path)
			}
			i.lg.Info("Pass 1 complete", zap.String("file", path), zap.Int64("codes", n))
			filters[idx] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// scan streams every file concurrently, sending unique codes to out and
// returning the sorted set of codes other files may also hold.
func (i *Importer) scan(ctx context.Context, filters []*bloom.BloomFilter, out chan<- string, c *counters) ([]string, error) {
	found := make([]map[string]struct{}, len(i.cfg.Files))
	g, ctx := errgroup.WithContext(ctx)
	for idx, path := range i.cfg.Files {
		g.Go(func() error {
			candidates := make(map[string]struct{})
			var sendErr error
			err := streamFile(ctx, path, func(lineNo int, line string) {
				if sendErr != nil {
					return
				}
				if n := c.lines.Add(1); n%progressEvery == 0 {
					i.lg.Info("Pass 2 progress", zap.Int64("lines", n))
				}
				code, ok := parseCode(line)
				if !ok {
					c.invalid.Add(1)
					i.lg.Debug("Invalid code", zap.String("file", path), zap.Int("line", lineNo))
					return
				}
				if inOtherFile(filters, idx, code) {
					candidates[code] = struct{}{}
					return
				}
				sendErr = send(ctx, out, code)
			})
			if sendErr != nil {
				return sendErr
			}
			if err != nil {
				return errors.Wrapf(err, "file %s", path)
			}
			i.lg.Info("Pass 2 complete", zap.String("file", path), zap.Int("repeated", len(candidates)))
			found[idx] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]struct{})
	for _, m := range found {
		for code := range m {
			merged[code] = struct{}{}
		}
	}
	repeated := make([]string, 0, len(merged))
	for code := range merged {
		repeated = append(repeated, code)
	}
	slices.Sort(repeated)
	return repeated, nil
}

// write batches codes from in and stores them until in is closed.
func (i *Importer) write(ctx context.Context, in <-chan string, c *counters) error {
	batch := make([]promo.DiscountCode, 0, i.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := i.store.InsertDiscountCodes(ctx, batch)
		c.inserted.Add(n)
		if err != nil {
			return errors.Wrap(err, "insert discount codes")
		}
		c.submitted.Add(int64(len(batch)))
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case code, ok := <-in:
			if !ok {
				return flush()
			}
			dc := i.cfg.Template
			dc.Code = code
			batch = append(batch, dc)
			if len(batch) == i.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

func send(ctx context.Context, out chan<- string, code string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- code:
		return nil
	}
}

func inOtherFile(filters []*bloom.BloomFilter, self int, code string) bool {
	for j, f := range filters {
		if j != self && f.TestString(code) {
			return true
		}
	}
	return false
}

// parseCode normalizes a line and reports whether it is a well-formed code.
func parseCode(line string) (string, bool) {
	code := promo.NormalizeCode(line)
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return "", false
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", false
		}
	}
	return code, true
}

// streamFile calls fn for every non-blank line that is not a # comment.
// Files ending in .gz are decompressed.
func streamFile(ctx context.Context, path string, fn func(lineNo int, line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if filepath.Ext(path) == ".gz" {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrap(err, "gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fn(lineNo, line)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}
