package util

import "testing"

func TestLastDigit(t *testing.T) {
	cases := []struct {
		price     float64
		precision int
		want      int
	}{
		{1234.56, 2, 6},
		{1234.50, 2, 0},
		{1234.5, 2, 0},
		{99.99, 2, 9},
		{0.07, 2, 7},
		{8631.4, 1, 4},
		{100.0, 2, 0},
	}
	for _, c := range cases {
		if got := LastDigit(c.price, c.precision); got != c.want {
			t.Fatalf("LastDigit(%v, %d) = %d, want %d", c.price, c.precision, got, c.want)
		}
	}
}
