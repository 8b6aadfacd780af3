package receipt

import (
	"context"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// These specs need a real PostgreSQL server. Point
// PENNYWISE_TEST_DATABASE_URL at a throwaway database to run them.
var _ = Describe("Postgres", func() {
	var (
		db  *Postgres
		ctx context.Context
	)

	BeforeEach(func() {
		databaseURL := os.Getenv("PENNYWISE_TEST_DATABASE_URL")
		if databaseURL == "" {
			Skip("PENNYWISE_TEST_DATABASE_URL not set")
		}

		ctx = context.Background()
		var err error
		db, err = NewPostgres(databaseURL)
		Expect(err).NotTo(HaveOccurred())
		Expect(db.EnsureSchema(ctx)).To(Succeed())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("EnsureSchema", func() {
		It("should be idempotent", func() {
			Expect(db.EnsureSchema(ctx)).To(Succeed())
			Expect(db.EnsureSchema(ctx)).To(Succeed())
		})
	})

	Describe("NewPostgres", func() {
		It("should create a database that does not exist yet", func() {
			u, err := url.Parse(os.Getenv("PENNYWISE_TEST_DATABASE_URL"))
			Expect(err).NotTo(HaveOccurred())
			u.Path = "/pennywise_bootstrap_" + uuid.NewString()[:8]

			fresh, err := NewPostgres(u.String())
			Expect(err).NotTo(HaveOccurred())
			defer fresh.Close()

			Expect(fresh.EnsureSchema(ctx)).To(Succeed())

			fresh.Close()
			_, err = db.db.Exec("DROP DATABASE " + pq.QuoteIdentifier(strings.TrimPrefix(u.Path, "/")))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("InsertGroceryItem", func() {
		var item *GroceryItem

		BeforeEach(func() {
			item = &GroceryItem{
				ID:            "550e8400-e29b-41d4-a716-446655440000",
				PriceCents:    599,
				ShopName:      "woolworths",
				ShopABN:       "1234567",
				ShopAddress:   "123 Main St, Springfield, IL",
				Category:      "Pink Lady Apples",
				DatePurchased: time.Date(2025, 2, 18, 0, 0, 0, 0, time.UTC),
			}
		})

		It("should round-trip every persisted field exactly", func() {
			rowID, err := db.InsertGroceryItem(ctx, item)
			Expect(err).NotTo(HaveOccurred())
			Expect(rowID).To(BeNumerically(">", 0))

			got, err := db.GetGroceryItem(ctx, rowID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PriceCents).To(Equal(item.PriceCents))
			Expect(got.ShopName).To(Equal(item.ShopName))
			Expect(got.ShopABN).To(Equal(item.ShopABN))
			Expect(got.ShopAddress).To(Equal(item.ShopAddress))
			Expect(got.Category).To(Equal(item.Category))
			Expect(got.DatePurchased.Format("2006-01-02")).To(Equal("2025-02-18"))
		})

		It("should preserve decimal precision for awkward amounts", func() {
			item.PriceCents = 509
			rowID, err := db.InsertGroceryItem(ctx, item)
			Expect(err).NotTo(HaveOccurred())

			got, err := db.GetGroceryItem(ctx, rowID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PriceCents).To(Equal(int64(509)))
		})
	})

	Describe("InsertReceipt", func() {
		It("should round-trip every persisted field exactly", func() {
			receipt := &Receipt{
				ID:            "550e8400-e29b-41d4-a716-446655440000",
				TotalCents:    8920,
				ShopName:      "woolworths",
				ShopABN:       "1234567",
				ShopAddress:   "123 Main St, Springfield, IL",
				Category:      "grocery",
				DatePurchased: time.Date(2025, 2, 18, 0, 0, 0, 0, time.UTC),
			}

			rowID, err := db.InsertReceipt(ctx, receipt)
			Expect(err).NotTo(HaveOccurred())

			got, err := db.GetReceipt(ctx, rowID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.TotalCents).To(Equal(receipt.TotalCents))
			Expect(got.Category).To(Equal("grocery"))
			Expect(got.DatePurchased.Format("2006-01-02")).To(Equal("2025-02-18"))
		})
	})

	Describe("Vocabulary embedding cache", func() {
		It("should round-trip embeddings per model", func() {
			names := []string{"Pink Lady Apples", "Honey Gold Mangoes"}
			vectors := [][]float32{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}}

			Expect(db.SaveVocabularyEmbeddings(ctx, "ollama/test-model", names, vectors)).To(Succeed())

			cached, err := db.LoadVocabularyEmbeddings(ctx, "ollama/test-model")
			Expect(err).NotTo(HaveOccurred())
			if !db.vectorOK {
				Expect(cached).To(BeEmpty())
				return
			}
			Expect(cached).To(HaveKeyWithValue("Pink Lady Apples", []float32{0.1, 0.2, 0.3}))
			Expect(cached).To(HaveKeyWithValue("Honey Gold Mangoes", []float32{0.4, 0.5, 0.6}))
		})
	})
})
