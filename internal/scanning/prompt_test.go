package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Prompts", func() {
	Describe("GroceryItemsPrompt", func() {
		It("should embed a parseable example of the expected output", func() {
			items, err := ParseGroceryItems(GroceryItemsPrompt())
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
		})

		It("should state the formatting rules", func() {
			prompt := GroceryItemsPrompt()
			Expect(prompt).To(ContainSubstring("triple backticks"))
			Expect(prompt).To(ContainSubstring("uuid4"))
			Expect(prompt).To(ContainSubstring("Do not use $"))
			Expect(prompt).To(ContainSubstring("YYYY-MM-DD"))
		})
	})

	Describe("ReceiptPrompt", func() {
		It("should embed a parseable example of the expected output", func() {
			receipts, err := ParseReceipts(ReceiptPrompt())
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(1))
			Expect(receipts[0].Category).To(Equal("grocery"))
		})

		It("should offer the fixed category options", func() {
			prompt := ReceiptPrompt()
			Expect(prompt).To(ContainSubstring("grocery"))
			Expect(prompt).To(ContainSubstring("fuel"))
			Expect(prompt).To(ContainSubstring("food"))
		})
	})

	Describe("CategoryPrompt", func() {
		It("should include the item, the vocabulary and the suggestion", func() {
			prompt := CategoryPrompt("pink lady apple", []string{"Pink Lady Apples", "Honey Gold Mangoes"}, "Pink Lady Apples")
			Expect(prompt).To(ContainSubstring(`"pink lady apple"`))
			Expect(prompt).To(ContainSubstring("Honey Gold Mangoes"))
			Expect(prompt).To(ContainSubstring(`closest known match is "Pink Lady Apples"`))
		})

		It("should omit the suggestion line when there is none", func() {
			prompt := CategoryPrompt("pink lady apple", []string{"Pink Lady Apples"}, "")
			Expect(prompt).NotTo(ContainSubstring("closest known match"))
		})
	})
})
