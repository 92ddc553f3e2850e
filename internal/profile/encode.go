package profile

import (
	"math"
	"strconv"
)

var (
	siPrefixLarge = []string{"", "k", "M", "G", "T", "P", "E", "Z", "Y"}
	siPrefixSmall = []string{"", "m", "u", "n", "p", "f", "a", "z", "y"}
)

// Encode formats value to three significant digits, optionally scaling it
// with an SI prefix (k, M, ... or m, u, ...).
func Encode(value float64, siPrefix bool) string {
	return encode(value, siPrefix, 3, 1000)
}

func encode(value float64, siPrefix bool, digits int, factor float64) string {
	prefix := ""
	if siPrefix {
		index := 0
		if value > 1 {
			for value >= factor && index < len(siPrefixLarge)-1 {
				value /= factor
				index++
			}
			prefix = siPrefixLarge[index]
		} else if value > 0 {
			for roundTo(value, digits) < 1 && index < len(siPrefixSmall)-1 {
				value *= factor
				index++
			}
			prefix = siPrefixSmall[index]
		}
	}
	for digit := digits; digit > 0; digit-- {
		value = roundTo(value, digit)
		if value < math.Pow(10, float64(digits-digit)) && value != roundTo(value, digit-1) {
			return strconv.FormatFloat(value, 'f', digit, 64) + prefix
		}
	}
	value = math.Round(value)
	if value == 0 {
		return "0"
	}
	return strconv.FormatFloat(value, 'f', 0, 64) + prefix
}

func roundTo(value float64, digits int) float64 {
	pow := math.Pow(10, float64(digits))
	return math.Round(value*pow) / pow
}
