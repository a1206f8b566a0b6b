package billing

import "github.com/kalvisk/namura/internal/money"

// ApplyTax fills an item's derived amounts. Amount stays as supplied when
// non-zero, otherwise it is quantity x unit price; the tax share is the
// amount at the tax's rate, rounded half up to the cent, or zero without
// a tax.
func ApplyTax(item *InvoiceItem, tax *Tax) {
	if item.Amount == 0 {
		item.Amount = money.MulQty(item.UnitPrice, item.Quantity)
	}
	if tax == nil {
		item.TaxID = ""
		item.TaxAmount = 0
		return
	}
	item.TaxID = tax.ID
	item.TaxAmount = money.ApplyRate(item.Amount, tax.RateBP)
}

// Aggregate sums the items into (subtotal, tax total, grand total). It is
// pure; Service.recomputeTotals persists its result and is the sole
// writer of the invoice's three total fields.
func Aggregate(items []*InvoiceItem) (subtotal, taxTotal, total money.Cents) {
	for _, it := range items {
		subtotal += it.Amount
		taxTotal += it.TaxAmount
	}
	return subtotal, taxTotal, subtotal + taxTotal
}
