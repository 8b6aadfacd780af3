package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoPayload indicates the model response contained no fenced code block
var ErrNoPayload = errors.New("no fenced payload found in model response")

// MalformedPayloadError indicates a fence pair was found but its contents
// could not be decoded as JSON
type MalformedPayloadError struct {
	Err error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed fenced payload: %v", e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// SchemaError indicates the decoded payload does not match the expected
// record shape. Missing lists absent or empty required fields, Invalid lists
// fields whose values could not be interpreted.
type SchemaError struct {
	Missing []string
	Invalid []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	return "payload violates expected schema: " + strings.Join(parts, "; ")
}

// GroceryItemData is one line item extracted from a receipt image
type GroceryItemData struct {
	UUID          string
	ItemName      string
	PriceCents    int64
	DatePurchased time.Time
	ShopName      string
	ShopAddress   string
	ShopABN       string
	ItemCategory  string
}

// ReceiptData is a whole-receipt summary extracted from a receipt image
type ReceiptData struct {
	UUID          string
	TotalCents    int64
	DatePurchased time.Time
	ShopName      string
	ShopAddress   string
	ShopABN       string
	Category      string
}

// ExtractFenced returns the contents of the first balanced triple-backtick
// fence pair in raw. An optional "json" tag after the opening fence is
// stripped. A fence opener with no closer counts as no payload.
func ExtractFenced(raw string) (string, error) {
	const fence = "```"

	start := strings.Index(raw, fence)
	if start == -1 {
		return "", ErrNoPayload
	}

	rest := raw[start+len(fence):]
	rest = strings.TrimPrefix(rest, "json")

	end := strings.Index(rest, fence)
	if end == -1 {
		return "", ErrNoPayload
	}

	return strings.TrimSpace(rest[:end]), nil
}

// moneyValue accepts a price as either a JSON number or a quoted decimal
// string; the prompt shows a string but models answer with both
type moneyValue string

func (m *moneyValue) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	if s == "null" {
		s = ""
	}
	*m = moneyValue(strings.TrimSpace(s))
	return nil
}

// groceryItemPayload is the wire shape the model is prompted to produce
type groceryItemPayload struct {
	UUID          string     `json:"uuid"`
	ItemName      string     `json:"item_name"`
	Price         moneyValue `json:"price"`
	DatePurchased string     `json:"date_purchased"`
	ShopName      string     `json:"shop_name"`
	ShopAddress   string     `json:"shop_address"`
	ShopABN       string     `json:"shop_abn"`
	ItemCategory  string     `json:"item_category"`
}

type receiptPayload struct {
	UUID          string     `json:"uuid"`
	Total         moneyValue `json:"total"`
	DatePurchased string     `json:"date_purchased"`
	ShopName      string     `json:"shop_name"`
	ShopAddress   string     `json:"shop_address"`
	ShopABN       string     `json:"shop_abn"`
	Category      string     `json:"receipt_category"`
}

// ParseGroceryItems extracts the fenced JSON payload from raw model output
// and decodes it into grocery item records. One malformed record fails the
// whole extraction; there is no partial acceptance.
func ParseGroceryItems(raw string) ([]GroceryItemData, error) {
	body, err := decodePayload(raw, "grocery_items")
	if err != nil {
		return nil, err
	}

	var wire []groceryItemPayload
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &MalformedPayloadError{Err: err}
	}

	items := make([]GroceryItemData, 0, len(wire))
	for i, w := range wire {
		schemaErr := &SchemaError{}
		prefix := fmt.Sprintf("grocery_items[%d].", i)

		requireField(schemaErr, prefix+"item_name", w.ItemName)
		requireField(schemaErr, prefix+"shop_name", w.ShopName)
		requireField(schemaErr, prefix+"shop_address", w.ShopAddress)
		requireField(schemaErr, prefix+"shop_abn", w.ShopABN)
		requireField(schemaErr, prefix+"item_category", w.ItemCategory)

		cents := parseMoney(schemaErr, prefix+"price", w.Price)
		date := parseDate(schemaErr, prefix+"date_purchased", w.DatePurchased)

		if len(schemaErr.Missing) > 0 || len(schemaErr.Invalid) > 0 {
			return nil, schemaErr
		}

		items = append(items, GroceryItemData{
			UUID:          ensureUUID(w.UUID),
			ItemName:      strings.TrimSpace(w.ItemName),
			PriceCents:    cents,
			DatePurchased: date,
			ShopName:      strings.TrimSpace(w.ShopName),
			ShopAddress:   strings.TrimSpace(w.ShopAddress),
			ShopABN:       strings.TrimSpace(w.ShopABN),
			ItemCategory:  strings.TrimSpace(w.ItemCategory),
		})
	}

	return items, nil
}

// ParseReceipts extracts the fenced JSON payload from raw model output and
// decodes it into receipt records. The payload may carry a single object or
// an array of them.
func ParseReceipts(raw string) ([]ReceiptData, error) {
	body, err := decodePayload(raw, "receipt_data")
	if err != nil {
		return nil, err
	}

	var wire []receiptPayload
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, &MalformedPayloadError{Err: err}
		}
	} else {
		var one receiptPayload
		if err := json.Unmarshal(body, &one); err != nil {
			return nil, &MalformedPayloadError{Err: err}
		}
		wire = append(wire, one)
	}

	receipts := make([]ReceiptData, 0, len(wire))
	for i, w := range wire {
		schemaErr := &SchemaError{}
		prefix := fmt.Sprintf("receipt_data[%d].", i)

		requireField(schemaErr, prefix+"shop_name", w.ShopName)
		requireField(schemaErr, prefix+"shop_address", w.ShopAddress)
		requireField(schemaErr, prefix+"shop_abn", w.ShopABN)
		requireField(schemaErr, prefix+"receipt_category", w.Category)

		cents := parseMoney(schemaErr, prefix+"total", w.Total)
		date := parseDate(schemaErr, prefix+"date_purchased", w.DatePurchased)

		if len(schemaErr.Missing) > 0 || len(schemaErr.Invalid) > 0 {
			return nil, schemaErr
		}

		receipts = append(receipts, ReceiptData{
			UUID:          ensureUUID(w.UUID),
			TotalCents:    cents,
			DatePurchased: date,
			ShopName:      strings.TrimSpace(w.ShopName),
			ShopAddress:   strings.TrimSpace(w.ShopAddress),
			ShopABN:       strings.TrimSpace(w.ShopABN),
			Category:      strings.TrimSpace(w.Category),
		})
	}

	return receipts, nil
}

// decodePayload extracts the fence contents, decodes the top level and
// returns the raw value under key. A decodable payload without the key is a
// schema violation, not a malformed payload.
func decodePayload(raw, key string) (json.RawMessage, error) {
	payload, err := ExtractFenced(raw)
	if err != nil {
		return nil, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &top); err != nil {
		return nil, &MalformedPayloadError{Err: err}
	}

	body, ok := top[key]
	if !ok {
		return nil, &SchemaError{Missing: []string{key}}
	}

	return body, nil
}

func requireField(schemaErr *SchemaError, name, value string) {
	if strings.TrimSpace(value) == "" {
		schemaErr.Missing = append(schemaErr.Missing, name)
	}
}

// parseMoney interprets a price as integer cents. The model is told not to
// use currency symbols, but a stray leading $ is tolerated.
func parseMoney(schemaErr *SchemaError, name string, value moneyValue) int64 {
	s := strings.TrimPrefix(string(value), "$")
	if s == "" {
		schemaErr.Missing = append(schemaErr.Missing, name)
		return 0
	}

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		// sub-cent precision cannot be stored exactly, so reject it
		schemaErr.Invalid = append(schemaErr.Invalid, name)
		return 0
	}
	for len(frac) < 2 {
		frac += "0"
	}

	cents := int64(0)
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			schemaErr.Invalid = append(schemaErr.Invalid, name)
			return 0
		}
		cents = cents*10 + int64(r-'0')
	}

	return cents
}

// dateFormats are tried in order when normalizing the purchase date. The
// prompt demands YYYY-MM-DD but vision models occasionally echo the format
// printed on the receipt.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
}

func parseDate(schemaErr *SchemaError, name, value string) time.Time {
	s := strings.TrimSpace(value)
	if s == "" {
		schemaErr.Missing = append(schemaErr.Missing, name)
		return time.Time{}
	}

	for _, format := range dateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return d
		}
	}

	schemaErr.Invalid = append(schemaErr.Invalid, name)
	return time.Time{}
}

// ensureUUID keeps the model-generated identifier when it is a parseable
// UUID and replaces it otherwise. Identifiers are synthetic, so a sloppy
// model response here is healed rather than rejected.
func ensureUUID(s string) string {
	s = strings.TrimSpace(s)
	if _, err := uuid.Parse(s); err == nil {
		return s
	}
	return uuid.NewString()
}
