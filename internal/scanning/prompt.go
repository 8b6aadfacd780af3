package scanning

import (
	"fmt"
	"strings"
)

// The extraction prompts constrain the model by example rather than by a
// formal grammar: each embeds a literal JSON payload of the exact expected
// shape. This is the only mechanism holding the model to the output
// contract, so the formatting rules are spelled out explicitly as well.

const groceryItemsPrompt = `Given the receipt image, extract the grocery items with their cost and other receipt details like date and shop details.
Respond to me ONLY in JSON format similar to the example below:
` + "```json" + `
{"grocery_items": [
  {
    "uuid": "550e8400-e29b-41d4-a716-446655440000",
    "item_name": "pink lady apple",
    "price": "5.99",
    "date_purchased": "2025-02-18",
    "shop_name": "woolworths",
    "shop_address": "123 Main St, Springfield, IL",
    "shop_abn": "1234567",
    "item_category": "Pink Lady Apples"
  },
  {
    "uuid": "550e8400-e29b-41d4-a716-446655240100",
    "item_name": "Mango Honey Gold",
    "price": "5.99",
    "date_purchased": "2025-02-18",
    "shop_name": "woolworths",
    "shop_address": "123 Main St, Springfield, IL",
    "shop_abn": "1234567",
    "item_category": "Honey Gold Mangoes"
  }
]}
` + "```" + `
Wrap the JSON output within triple backticks.
Generate uuid using a uuid4 generator.
Do not use $ for the price.
Give me the date purchased in YYYY-MM-DD format.`

const receiptPrompt = `Given the receipt image, extract the category of the receipt from the options:
1. grocery
2. fuel
3. food
If the receipt doesn't fit into the above options, give me a new category.

Extract the total cost of the receipt, purchase date, shop name, shop address and ABN.
Respond to me ONLY in JSON format similar to the example below:
` + "```json" + `
{"receipt_data": {
  "uuid": "550e8400-e29b-41d4-a716-446655440000",
  "total": "5.99",
  "date_purchased": "2025-02-18",
  "shop_name": "woolworths",
  "shop_address": "123 Main St, Springfield, IL",
  "shop_abn": "1234567",
  "receipt_category": "grocery"
}}
` + "```" + `
Wrap the JSON output within triple backticks.
Generate uuid using a uuid4 generator.
Do not use $ for the price.
Give me the date purchased in YYYY-MM-DD format.`

// GroceryItemsPrompt is the extraction prompt for the per-item variant
func GroceryItemsPrompt() string {
	return groceryItemsPrompt
}

// ReceiptPrompt is the extraction prompt for the per-receipt variant
func ReceiptPrompt() string {
	return receiptPrompt
}

// CategoryPrompt asks the model to map an extracted item name onto the
// canonical vocabulary. The nearest-neighbor suggestion, when present, gives
// the model a starting point but its own answer wins.
func CategoryPrompt(itemName string, vocabulary []string, suggestion string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given the item name extracted from a receipt, %q, what is the item category?\n", itemName)
	fmt.Fprintf(&b, "Choose from this list if present:\n%s\n", strings.Join(vocabulary, "\n"))
	if suggestion != "" {
		fmt.Fprintf(&b, "The closest known match is %q.\n", suggestion)
	}
	b.WriteString("Respond ONLY with the item category and NOT as a statement. No supporting text.")
	return b.String()
}
