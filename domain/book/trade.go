package book

// Trade records one execution between an incoming order and a resting
// maker. Price is always the maker's price. Seq is assigned by the
// engine's sequencer after the match.
type Trade struct {
	Seq         uint64 `json:"seq"`
	Symbol      string `json:"symbol"`
	BuyOrderID  string `json:"buyOrderId"`
	SellOrderID string `json:"sellOrderId"`
	Price       int64  `json:"price"`
	Qty         int64  `json:"quantity"`
}
