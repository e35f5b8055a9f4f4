package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockCreator struct {
	mu       sync.Mutex
	existing map[string]bool
	fail     error
	created  []*product.Product
}

func (m *mockCreator) Create(_ context.Context, p *product.Product) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.fail != nil:
		return nil, m.fail
	case p.Title == "":
		return nil, apperr.Validation("Title is required")
	case m.existing[skuKey(p.SKU)]:
		return nil, apperr.Conflict("Product with this SKU or slug already exists", nil)
	}
	m.created = append(m.created, p)
	return p, nil
}

func (m *mockCreator) skus() []string {
	var out []string
	for _, p := range m.created {
		out = append(out, skuKey(p.SKU))
	}
	return out
}

// --- Helpers ---

func writeGz(t *testing.T, dir, name string, lines ...string) string {
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

func catalogFiles(t *testing.T) []string {
	dir := t.TempDir()
	return []string{
		writeGz(t, dir, "a.jsonl.gz",
			`{"sku":"SKU-1","title":"Cotton Tee","price":{"original":"499"},"stock":{"quantity":10}}`,
			`{"sku":"SKU-2","title":"Denim Jacket","price":{"original":2999}}`,
		),
		writeGz(t, dir, "b.jsonl.gz",
			`{"sku":" sku-2 ","title":"Denim Jacket v2","price":{"original":"2799"}}`,
			``,
			`{"sku":"sku-3","title":"Linen Shirt","price":{"original":"1299"},"stock":{"trackInventory":false}}`,
		),
		writeGz(t, dir, "c.jsonl.gz",
			`{"sku":"SKU-4","title":"Wool Scarf","price":{"original":"799"}}`,
			`{"sku":"SKU-5","title":""}`,
			`{not json`,
		),
	}
}

// --- Tests ---

func TestImport(t *testing.T) {
	svc := &mockCreator{existing: map[string]bool{"SKU-4": true}}

	stats, err := Import(context.Background(), zap.NewNop(), svc, catalogFiles(t), 4, 100)
	require.NoError(t, err)

	assert.Equal(t, []string{"SKU-2"}, stats.Duplicates)
	assert.EqualValues(t, 2, stats.Created)
	assert.EqualValues(t, 1, stats.Existing)
	assert.EqualValues(t, 2, stats.Invalid)
	assert.ElementsMatch(t, []string{"SKU-1", "SKU-3"}, svc.skus())

	for _, p := range svc.created {
		switch skuKey(p.SKU) {
		case "SKU-1":
			assert.Equal(t, "cotton-tee-sku-1", p.Slug)
			assert.Equal(t, 10, p.Stock.Quantity)
			assert.True(t, p.Stock.TrackInventory)
			assert.Equal(t, "499", p.Price.Original.String())
		case "SKU-3":
			assert.False(t, p.Stock.TrackInventory)
		}
	}
}

func TestImport_StorageFailure(t *testing.T) {
	svc := &mockCreator{fail: errors.New("connection reset")}

	_, err := Import(context.Background(), zap.NewNop(), svc, catalogFiles(t), 1, 100)
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")
}

func TestImport_MissingFile(t *testing.T) {
	_, err := Import(context.Background(), zap.NewNop(), &mockCreator{}, []string{"/nonexistent.jsonl.gz"}, 1, 100)
	assert.ErrorContains(t, err, "open /nonexistent.jsonl.gz")
}

func TestCrossFileDuplicates_SameFileRepeatIsNotCrossFile(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.jsonl.gz", `{"sku":"A"}`, `{"sku":"A"}`),
		writeGz(t, dir, "b.jsonl.gz", `{"sku":"B"}`),
	}
	ctx := context.Background()
	filters, err := buildFilters(ctx, zap.NewNop(), files, 10)
	require.NoError(t, err)

	dups, err := crossFileDuplicates(ctx, files, filters)
	require.NoError(t, err)
	assert.Empty(t, dups)
}
