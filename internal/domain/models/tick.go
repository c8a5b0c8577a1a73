package models

import "time"

// Tick is a single price observation from the market stream.
// Digit is the last decimal digit of Price at the symbol's quote precision.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Digit     int       `json:"digit"`
	Timestamp time.Time `json:"timestamp"`
}
