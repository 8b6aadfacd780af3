package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/iamdpak/pennywise/internal/scanning"
	"github.com/iamdpak/pennywise/internal/vocab"
)

// Variant selects which record shape the pipeline extracts
type Variant string

const (
	// VariantGrocery extracts one record per line item
	VariantGrocery Variant = "grocery"
	// VariantReceipt extracts one summary record per receipt
	VariantReceipt Variant = "receipt"
)

// ErrImageNotFound indicates the input image path does not exist
var ErrImageNotFound = errors.New("image not found")

// VocabularyIndex answers nearest-neighbor queries over the canonical
// grocery vocabulary
type VocabularyIndex interface {
	NearestNeighbor(ctx context.Context, query string, k int) ([]vocab.Match, error)
	Names() []string
}

// RawCache stores raw model responses for diagnostics
type RawCache interface {
	Put(imagePath string, response CachedResponse) error
}

// Service orchestrates the receipt extraction pipeline: prompt, completion,
// parse, category refinement, persistence. It processes one image at a time;
// all calls are synchronous.
type Service struct {
	db        DB
	completer scanning.Completer
	variant   Variant
	index     VocabularyIndex
	cache     RawCache
}

// NewService creates a pipeline without vocabulary normalization or
// response caching
func NewService(db DB, completer scanning.Completer, variant Variant) *Service {
	return NewServiceWithDeps(db, completer, variant, nil, nil)
}

// NewServiceWithDeps creates a pipeline with an optional vocabulary index
// (grocery variant category refinement) and an optional raw response cache
func NewServiceWithDeps(db DB, completer scanning.Completer, variant Variant, index VocabularyIndex, cache RawCache) *Service {
	return &Service{
		db:        db,
		completer: completer,
		variant:   variant,
		index:     index,
		cache:     cache,
	}
}

// ProcessImage runs the full pipeline for one image. Failures before parsing
// succeeds abort the image with nothing persisted. Once parsing succeeds,
// records are inserted one by one; an insert failure on record k leaves
// records 1..k-1 committed and is surfaced, not hidden.
func (s *Service) ProcessImage(ctx context.Context, imagePath string) (*Extraction, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, imagePath)
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}

	pngData, err := scanning.PrepareImage(data, imagePath)
	if err != nil {
		return nil, fmt.Errorf("preparing image: %w", err)
	}

	prompt := scanning.ReceiptPrompt()
	if s.variant == VariantGrocery {
		prompt = scanning.GroceryItemsPrompt()
	}

	raw, err := s.completer.Complete(ctx, prompt, pngData)
	if err != nil {
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	if s.cache != nil {
		cacheErr := s.cache.Put(imagePath, CachedResponse{
			Raw:        raw,
			Model:      s.completer.Model(),
			CapturedAt: time.Now(),
		})
		if cacheErr != nil {
			slog.Warn("Failed to cache raw response", "image", imagePath, "error", cacheErr)
		}
	}

	extraction := &Extraction{ImagePath: imagePath, Raw: raw}

	switch s.variant {
	case VariantGrocery:
		items, err := scanning.ParseGroceryItems(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing receipt data: %w", err)
		}
		for i := range items {
			s.refineCategory(ctx, &items[i])
		}
		for _, item := range items {
			record := &GroceryItem{
				ID:            item.UUID,
				ItemName:      item.ItemName,
				PriceCents:    item.PriceCents,
				ShopName:      item.ShopName,
				ShopABN:       item.ShopABN,
				ShopAddress:   item.ShopAddress,
				Category:      item.ItemCategory,
				DatePurchased: item.DatePurchased,
			}
			rowID, err := s.db.InsertGroceryItem(ctx, record)
			if err != nil {
				return nil, err
			}
			record.RowID = rowID
			extraction.Items = append(extraction.Items, record)
		}
	case VariantReceipt:
		receipts, err := scanning.ParseReceipts(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing receipt data: %w", err)
		}
		for _, r := range receipts {
			record := &Receipt{
				ID:            r.UUID,
				TotalCents:    r.TotalCents,
				ShopName:      r.ShopName,
				ShopABN:       r.ShopABN,
				ShopAddress:   r.ShopAddress,
				Category:      r.Category,
				DatePurchased: r.DatePurchased,
			}
			rowID, err := s.db.InsertReceipt(ctx, record)
			if err != nil {
				return nil, err
			}
			record.RowID = rowID
			extraction.Receipts = append(extraction.Receipts, record)
		}
	default:
		return nil, fmt.Errorf("unknown pipeline variant %q", s.variant)
	}

	return extraction, nil
}

// refineCategory asks the model to map the item name onto the canonical
// vocabulary. Any failure here degrades to the unrefined category; a bad
// category is better than losing the whole receipt.
func (s *Service) refineCategory(ctx context.Context, item *scanning.GroceryItemData) {
	if s.index == nil {
		return
	}

	suggestion := ""
	matches, err := s.index.NearestNeighbor(ctx, item.ItemName, 1)
	if err != nil {
		slog.Warn("Nearest-neighbor lookup failed", "item", item.ItemName, "error", err)
	} else if len(matches) > 0 {
		suggestion = matches[0].Name
	}

	prompt := scanning.CategoryPrompt(item.ItemName, s.index.Names(), suggestion)
	response, err := s.completer.Complete(ctx, prompt, nil)
	if err != nil {
		slog.Warn("Category refinement failed, keeping original category",
			"item", item.ItemName,
			"category", item.ItemCategory,
			"error", err,
		)
		return
	}

	category := cleanCategory(response)
	if category == "" {
		slog.Warn("Category refinement returned nothing usable, keeping original category",
			"item", item.ItemName,
			"category", item.ItemCategory,
		)
		return
	}

	item.ItemCategory = category
}

// cleanCategory reduces a refinement response to a bare category name. The
// model is told to answer with the category only, but quotes and trailing
// prose still happen.
func cleanCategory(response string) string {
	category := strings.TrimSpace(response)
	if line, _, found := strings.Cut(category, "\n"); found {
		category = line
	}
	category = strings.Trim(category, `"'`+" .")
	return category
}

// imageExtensions are the input file types picked up from the receipts
// directory
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
	".heic": true,
}

// ProcessDirectory runs the pipeline over every receipt image in dir, in
// name order. A failure on one image is logged and the batch continues;
// the returned counts tell the caller how the run went.
func (s *Service) ProcessDirectory(ctx context.Context, dir string) (succeeded, failed int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("reading receipts directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	for _, path := range paths {
		extraction, err := s.ProcessImage(ctx, path)
		if err != nil {
			slog.Error("Failed to process receipt", "image", path, "error", err)
			failed++
			continue
		}
		slog.Info("Processed receipt", "image", path, "records", extraction.Records())
		succeeded++
	}

	return succeeded, failed, nil
}
