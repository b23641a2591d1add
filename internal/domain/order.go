package domain

// OrderLine is one line of an order as seen by the rules engine. Prices are
// in cents.
type OrderLine struct {
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// Subtotal returns the pre-discount price of the line in cents.
func (l OrderLine) Subtotal() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

// BasePrice sums the subtotals of all lines.
func BasePrice(lines []OrderLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Subtotal()
	}
	return total
}

// TotalQuantity sums the quantities of all lines.
func TotalQuantity(lines []OrderLine) int {
	var total int
	for _, l := range lines {
		total += l.Quantity
	}
	return total
}
