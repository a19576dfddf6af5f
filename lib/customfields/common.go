package customfields

import (
	"strconv"
	"strings"
	"unicode"
)

// separateStr splits a value like "256m" into its leading number and the
// remaining lowercased suffix.
func separateStr(str string) (uint64, string, error) {
	str = strings.ToLower(str)
	digits := len(str)
	for i, r := range str {
		if !unicode.IsDigit(r) {
			digits = i
			break
		}
	}
	num, err := strconv.ParseUint(str[:digits], 10, 64)
	if err != nil {
		return 0, "", err
	}
	return num, str[digits:], nil
}
