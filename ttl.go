package authcore

import "strconv"

// ParseTTL converts a human-readable TTL string into a whole number of
// seconds. Accepted forms are a bare integer (seconds) or an integer with a
// unit suffix: "m" (minutes), "h" (hours), "d" (days).
//
//	ParseTTL("15m") == 900
//	ParseTTL("2h")  == 7200
//	ParseTTL("1d")  == 86400
//	ParseTTL("300") == 300
//
// Malformed input fails exactly the way numeric parsing of it fails; the
// parser never guesses.
func ParseTTL(s string) (int64, error) {
	multiplier := int64(1)
	digits := s

	if len(s) > 0 {
		switch s[len(s)-1] {
		case 'm':
			multiplier = 60
			digits = s[:len(s)-1]
		case 'h':
			multiplier = 3600
			digits = s[:len(s)-1]
		case 'd':
			multiplier = 86400
			digits = s[:len(s)-1]
		}
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, err
	}

	return n * multiplier, nil
}
