package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName    = "Sheet1"
	xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var header = []interface{}{
	"PO Number", "Supplier", "Status", "SKU", "Product ID", "Quantity", "Quantity Source", "Unit Cost", "Amount", "Alert IDs",
}

// PurchaseOrderWorkbook renders one row per order line.
func PurchaseOrderWorkbook(orders []*domain.PurchaseOrder) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	row := 2
	for _, po := range orders {
		alertIDs := fmt.Sprint(po.AlertIDs)
		for _, line := range po.Lines {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return nil, err
			}
			values := []interface{}{
				po.Number,
				po.SupplierName,
				po.StatusLabel(),
				line.SKU,
				line.ProductID,
				line.Quantity,
				line.QuantitySource,
				line.UnitCost.StringFixed(2),
				line.Amount.StringFixed(2),
				alertIDs,
			}
			if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
			row++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Exporter writes purchase-order workbooks to object storage, or to a local
// directory when no storage backend is configured.
type Exporter struct {
	store  storage.ObjectStorage
	prefix string
	dir    string
	now    func() time.Time
}

func NewExporter(store storage.ObjectStorage, prefix, dir string) *Exporter {
	return &Exporter{store: store, prefix: prefix, dir: dir, now: time.Now}
}

// Export renders orders and returns the location written to.
func (e *Exporter) Export(ctx context.Context, runID string, orders []*domain.PurchaseOrder) (string, error) {
	if len(orders) == 0 {
		return "", nil
	}
	data, err := PurchaseOrderWorkbook(orders)
	if err != nil {
		return "", err
	}

	base := fmt.Sprintf("purchase_orders_%s_%s", e.now().UTC().Format("20060102T150405"), runID)
	name := base + ".xlsx"

	if e.store != nil {
		key, err := e.freeKey(ctx, base)
		if err != nil {
			return "", err
		}
		if err := e.store.UploadObject(ctx, key, data, xlsxMimeType); err != nil {
			return "", err
		}
		log.Info().Str("key", key).Int("orders", len(orders)).Msg("purchase order workbook uploaded")
		return key, nil
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed creating export directory %s: %w", e.dir, err)
	}
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed writing %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("orders", len(orders)).Msg("purchase order workbook written")
	return path, nil
}

// freeKey returns the first object key for base that is not taken yet, so a
// re-run within the same second never overwrites an earlier workbook.
func (e *Exporter) freeKey(ctx context.Context, base string) (string, error) {
	if e.prefix != "" {
		base = e.prefix + "/" + base
	}
	existing, err := e.store.ListObjects(ctx, base)
	if err != nil {
		return "", fmt.Errorf("list existing exports: %w", err)
	}
	taken := make(map[string]struct{}, len(existing))
	for _, obj := range existing {
		taken[obj.Key] = struct{}{}
	}

	key := base + ".xlsx"
	for n := 2; ; n++ {
		if _, ok := taken[key]; !ok {
			return key, nil
		}
		key = fmt.Sprintf("%s_%d.xlsx", base, n)
	}
}
