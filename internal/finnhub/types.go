package finnhub

// Quote is the real-time quote payload. A zero Current price means the
// vendor has no data for the symbol.
type Quote struct {
	Current       float64 `json:"c"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// CompanyProfile is the /stock/profile2 payload
type CompanyProfile struct {
	Country          string  `json:"country"`
	Currency         string  `json:"currency"`
	Exchange         string  `json:"exchange"`
	IPO              string  `json:"ipo"`
	MarketCap        float64 `json:"marketCapitalization"`
	Name             string  `json:"name"`
	ShareOutstanding float64 `json:"shareOutstanding"`
	Ticker           string  `json:"ticker"`
	WebURL           string  `json:"weburl"`
	Logo             string  `json:"logo"`
	Industry         string  `json:"finnhubIndustry"`
}

// BasicFinancials is the /stock/metric payload
type BasicFinancials struct {
	Symbol     string                 `json:"symbol"`
	MetricType string                 `json:"metricType"`
	Metric     map[string]interface{} `json:"metric"`
}

// RecommendationTrend is one row of the /stock/recommendation payload
type RecommendationTrend struct {
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Period     string `json:"period"`
	Sell       int    `json:"sell"`
	StrongBuy  int    `json:"strongBuy"`
	StrongSell int    `json:"strongSell"`
	Symbol     string `json:"symbol"`
}

// SearchMatch is one result of a symbol lookup
type SearchMatch struct {
	Description   string `json:"description"`
	DisplaySymbol string `json:"displaySymbol"`
	Symbol        string `json:"symbol"`
	Type          string `json:"type"`
}

// SearchResult is the /search payload
type SearchResult struct {
	Count  int           `json:"count"`
	Result []SearchMatch `json:"result"`
}

// Candles is the /stock/candle payload; Status "ok" means data is present
type Candles struct {
	Close      []float64 `json:"c"`
	High       []float64 `json:"h"`
	Low        []float64 `json:"l"`
	Open       []float64 `json:"o"`
	Status     string    `json:"s"`
	Timestamps []int64   `json:"t"`
	Volumes    []float64 `json:"v"`
}

// StockDetail aggregates a quote with profile, financials and the latest
// analyst recommendation. Everything past the quote is best effort.
type StockDetail struct {
	Symbol         string               `json:"symbol"`
	Quote          *Quote               `json:"quote"`
	Profile        *CompanyProfile      `json:"profile,omitempty"`
	Financials     *BasicFinancials     `json:"financials,omitempty"`
	Recommendation *RecommendationTrend `json:"recommendation,omitempty"`
}
