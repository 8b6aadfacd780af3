package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ResponseCache", func() {
	var (
		cache *ResponseCache
		err   error
	)

	BeforeEach(func() {
		path := filepath.Join(GinkgoT().TempDir(), "responses.db")
		cache, err = NewResponseCache(path)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if cache != nil {
			cache.Close()
		}
	})

	Describe("Put and Get", func() {
		var response CachedResponse

		BeforeEach(func() {
			response = CachedResponse{
				Raw:        "```json\n{}\n```",
				Model:      "llama3.2-vision",
				CapturedAt: time.Date(2025, 2, 18, 10, 30, 0, 0, time.UTC),
			}
			err = cache.Put("/receipts/woolies.jpg", response)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the stored response", func() {
			got, err := cache.Get("/receipts/woolies.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(*got).To(Equal(response))
		})

		It("should replace a previous response for the same image", func() {
			response.Raw = "newer response"
			Expect(cache.Put("/receipts/woolies.jpg", response)).To(Succeed())

			got, err := cache.Get("/receipts/woolies.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Raw).To(Equal("newer response"))
		})
	})

	Describe("Get with no entry", func() {
		It("should return an error", func() {
			_, err := cache.Get("/receipts/unknown.jpg")
			Expect(err).To(HaveOccurred())
		})
	})
})
