package util

import "strconv"

// LastDigit returns the final decimal digit of price when rendered at the
// given quote precision. Deriv volatility indices quote with a fixed pip
// size, so the digit is defined by the formatted quote, not the float bits.
func LastDigit(price float64, precision int) int {
	s := strconv.FormatFloat(price, 'f', precision, 64)
	return int(s[len(s)-1] - '0')
}
