package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeStorage struct {
	key         string
	data        []byte
	contentType string
	objects     map[string]int64
	listErr     error
}

func (f *fakeStorage) ListObjects(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []storage.ObjectInfo
	for key, size := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: size})
		}
	}
	return out, nil
}

func (f *fakeStorage) UploadObject(_ context.Context, key string, data []byte, contentType string) error {
	f.key, f.data, f.contentType = key, data, contentType
	if f.objects == nil {
		f.objects = make(map[string]int64)
	}
	f.objects[key] = int64(len(data))
	return nil
}

func sampleOrders() []*domain.PurchaseOrder {
	return []*domain.PurchaseOrder{{
		Number:       "PO-1",
		SupplierName: "Acme",
		Lines: []domain.PurchaseOrderLine{
			{ProductID: 1, SKU: "A", Quantity: 10, UnitCost: decimal.NewFromFloat(2.5), Amount: decimal.NewFromInt(25), QuantitySource: "eoq"},
			{ProductID: 2, SKU: "B", Quantity: 4, UnitCost: decimal.NewFromInt(3), Amount: decimal.NewFromInt(12), QuantitySource: "default"},
		},
		AlertIDs: []int64{7, 8},
	}}
}

func TestPurchaseOrderWorkbook(t *testing.T) {
	data, err := PurchaseOrderWorkbook(sampleOrders())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "PO Number", rows[0][0])
	assert.Equal(t, "A", rows[1][3])
	assert.Equal(t, "2.50", rows[1][7])
	assert.Equal(t, "12.00", rows[2][8])
}

func TestExporter_UploadsWhenStorageConfigured(t *testing.T) {
	store := &fakeStorage{}
	key, err := NewExporter(store, "exports", t.TempDir()).Export(context.Background(), "run1", sampleOrders())
	require.NoError(t, err)

	assert.Equal(t, key, store.key)
	assert.Contains(t, key, "exports/purchase_orders_")
	assert.Equal(t, xlsxMimeType, store.contentType)
	assert.NotEmpty(t, store.data)
}

func TestExporter_WritesLocally(t *testing.T) {
	dir := t.TempDir()
	path, err := NewExporter(nil, "", dir).Export(context.Background(), "run2", sampleOrders())
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestExporter_SkipsEmpty(t *testing.T) {
	path, err := NewExporter(nil, "", t.TempDir()).Export(context.Background(), "run3", nil)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestExporter_NeverOverwritesExistingObject(t *testing.T) {
	store := &fakeStorage{}
	e := NewExporter(store, "exports", t.TempDir())
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	first, err := e.Export(context.Background(), "run1", sampleOrders())
	require.NoError(t, err)
	second, err := e.Export(context.Background(), "run1", sampleOrders())
	require.NoError(t, err)
	third, err := e.Export(context.Background(), "run1", sampleOrders())
	require.NoError(t, err)

	assert.Equal(t, "exports/purchase_orders_20260301T100000_run1.xlsx", first)
	assert.Equal(t, "exports/purchase_orders_20260301T100000_run1_2.xlsx", second)
	assert.Equal(t, "exports/purchase_orders_20260301T100000_run1_3.xlsx", third)
	assert.Len(t, store.objects, 3)
}

func TestExporter_ListFailureAbortsUpload(t *testing.T) {
	store := &fakeStorage{listErr: errors.New("bucket unreachable")}
	_, err := NewExporter(store, "", t.TempDir()).Export(context.Background(), "run4", sampleOrders())
	require.Error(t, err)
	assert.Empty(t, store.objects)
}
