package codeimport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/eventpass/internal/domain/promo"
)

type fakeStore struct {
	mu       sync.Mutex
	existing map[string]bool
	batches  [][]promo.DiscountCode
	err      error
}

func (s *fakeStore) InsertDiscountCodes(_ context.Context, codes []promo.DiscountCode) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.batches = append(s.batches, slicesClone(codes))
	var n int64
	for _, c := range codes {
		if !s.existing[c.Code] {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, b := range s.batches {
		for _, c := range b {
			out = append(out, c.Code)
		}
	}
	return out
}

func slicesClone(in []promo.DiscountCode) []promo.DiscountCode {
	return append([]promo.DiscountCode(nil), in...)
}

func writePlain(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func writeGzip(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func template() promo.DiscountCode {
	return promo.DiscountCode{
		AccountID: 1,
		EventID:   10,
		Amount:    decimal.NewFromInt(2500),
		MaxUses:   1,
		Active:    true,
	}
}

func sampleFiles(t *testing.T) []string {
	dir := t.TempDir()
	return []string{
		writePlain(t, dir, "first.txt", "alpha", "BETA", "  gamma ", "x", "", "# header", "bad code!"),
		writePlain(t, dir, "second.txt", "beta", "delta"),
		writeGzip(t, dir, "third.txt.gz", "GAMMA", "EPSILON", "delta"),
	}
}

func TestImporter_Run(t *testing.T) {
	store := &fakeStore{}
	imp, err := New(store, Config{Files: sampleFiles(t), Template: template(), BatchSize: 2})
	require.NoError(t, err)

	st, err := imp.Run(context.Background())
	require.NoError(t, err)

	// Every valid code is submitted exactly once, repeated ones included.
	assert.ElementsMatch(t, []string{"ALPHA", "BETA", "GAMMA", "DELTA", "EPSILON"}, store.codes())
	assert.EqualValues(t, 10, st.Lines)
	assert.EqualValues(t, 2, st.Invalid)
	assert.GreaterOrEqual(t, st.Repeated, int64(3))
	assert.EqualValues(t, 5, st.Submitted)
	assert.EqualValues(t, 5, st.Inserted)
	assert.Zero(t, st.Skipped())

	for _, b := range store.batches {
		assert.LessOrEqual(t, len(b), 2)
		for _, c := range b {
			assert.EqualValues(t, 1, c.AccountID)
			assert.EqualValues(t, 10, c.EventID)
			assert.True(t, c.Amount.Equal(decimal.NewFromInt(2500)))
			assert.True(t, c.Active)
		}
	}
}

func TestImporter_RunSkipsExisting(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	store := &fakeStore{existing: map[string]bool{"ALPHA": true}}
	imp, err := New(store, Config{Files: sampleFiles(t), Template: template(), Logger: zap.New(core)})
	require.NoError(t, err)

	st, err := imp.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 5, st.Submitted)
	assert.EqualValues(t, 4, st.Inserted)
	assert.EqualValues(t, 1, st.Skipped())

	done := logs.FilterMessage("Import complete").All()
	require.Len(t, done, 1)
	assert.Equal(t, int64(1), done[0].ContextMap()["skipped"])
}

func TestImporter_RunStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("connection reset")}
	imp, err := New(store, Config{Files: sampleFiles(t), Template: template()})
	require.NoError(t, err)

	_, err = imp.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestImporter_RunMissingFile(t *testing.T) {
	store := &fakeStore{}
	imp, err := New(store, Config{Files: []string{filepath.Join(t.TempDir(), "nope.gz")}, Template: template()})
	require.NoError(t, err)

	_, err = imp.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.codes())
}

func TestImporter_RunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	imp, err := New(&fakeStore{}, Config{Files: sampleFiles(t), Template: template()})
	require.NoError(t, err)
	_, err = imp.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	_, err := New(&fakeStore{}, Config{Template: template()})
	require.Error(t, err)

	_, err = New(&fakeStore{}, Config{Files: []string{"a.txt"}})
	require.Error(t, err)
}

func TestParseCode(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{line: "summer-24", want: "SUMMER-24", ok: true},
		{line: "VIP_PASS", want: "VIP_PASS", ok: true},
		{line: "ab", ok: false},
		{line: strings.Repeat("A", 65), ok: false},
		{line: "two words", ok: false},
		{line: "ÑANDU", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := parseCode(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
