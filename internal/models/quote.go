package models

// DailyQuote is the quote cached for one day key.
type DailyQuote struct {
	Date string `json:"date"`
	Text string `json:"quote"`
}
