package receipt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GroceryItem is one purchased line item extracted from a receipt.
// ItemName is carried for category refinement but not persisted; the durable
// schema records the item only by its canonical category.
type GroceryItem struct {
	RowID         int64     `json:"row_id,omitempty"`
	ID            string    `json:"id"`
	ItemName      string    `json:"item_name,omitempty"`
	PriceCents    int64     `json:"price"` // Price in cents
	ShopName      string    `json:"shop_name"`
	ShopABN       string    `json:"shop_abn"`
	ShopAddress   string    `json:"shop_address"`
	Category      string    `json:"category"`
	DatePurchased time.Time `json:"date_purchased"`
}

// Receipt is a whole-receipt summary record
type Receipt struct {
	RowID         int64     `json:"row_id,omitempty"`
	ID            string    `json:"id"`
	TotalCents    int64     `json:"total"` // Total in cents
	ShopName      string    `json:"shop_name"`
	ShopABN       string    `json:"shop_abn"`
	ShopAddress   string    `json:"shop_address"`
	Category      string    `json:"category"`
	DatePurchased time.Time `json:"date_purchased"`
}

// Extraction ties the records produced from one source image together with
// the raw model response kept for diagnostics.
type Extraction struct {
	ImagePath string
	Items     []*GroceryItem
	Receipts  []*Receipt
	Raw       string
}

// Records returns how many records the extraction produced
func (e *Extraction) Records() int {
	return len(e.Items) + len(e.Receipts)
}

// CentsToDecimal renders integer cents as the exact decimal string stored in
// the NUMERIC(10,2) columns, e.g. 599 -> "5.99".
func CentsToDecimal(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// DecimalToCents parses a NUMERIC(10,2) value read back from the database
func DecimalToCents(s string) (int64, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(s), ".")
	for len(frac) < 2 {
		frac += "0"
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing decimal %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing decimal %q: %w", s, err)
	}

	return w*100 + f, nil
}
