// Package otp extracts one-time passcodes from email text.
package otp

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// contextRadius is how many characters on each side of the reference
// code are searched when no labelled code is present.
const contextRadius = 200

// labelledPatterns match a code printed right after a label. They are
// tried in order and the first match anywhere in the text wins.
var labelledPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)รหัส\s*OTP\s*[:：]?\s*(\d{4,8})\b`),
	regexp.MustCompile(`(?i)OTP\s*code\s*[:：]?\s*(\d{4,8})\b`),
	regexp.MustCompile(`(?i)verification\s*code\s*[:：]?\s*(\d{4,8})\b`),
	regexp.MustCompile(`(?i)one[-\s]?time\s*(?:password|passcode|code)\s*[:：]?\s*(\d{4,8})\b`),
	regexp.MustCompile(`(?i)รหัสยืนยัน\s*[:：]?\s*(\d{4,8})\b`),
	regexp.MustCompile(`(?i)\bOTP\s*[:：]\s*(\d{4,8})\b`),
}

// contextShapes are generic token shapes tried in order inside the
// window around the reference code.
var contextShapes = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{6}\b`),
	regexp.MustCompile(`\b\d{4}\b`),
	regexp.MustCompile(`\b[A-Z0-9]{5,8}\b`),
}

var (
	yearPattern     = regexp.MustCompile(`^20[23]\d$`)
	areaCodePattern = regexp.MustCompile(`^0[2-7]\d`)
	phonePattern    = regexp.MustCompile(`^\d{11,}$`)
	hasLetter       = regexp.MustCompile(`[A-Z]`)
	hasDigit        = regexp.MustCompile(`\d`)
)

// Extract returns the OTP accompanying referenceCode in text. It reports
// false when text does not contain referenceCode or no candidate is found.
func Extract(text, referenceCode string) (string, bool) {
	if referenceCode == "" || !strings.Contains(text, referenceCode) {
		return "", false
	}

	for _, re := range labelledPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}

	window := contextWindow(text, referenceCode)
	for i, re := range contextShapes {
		for _, token := range re.FindAllString(window, -1) {
			if token == referenceCode || likelyFalsePositive(token) {
				continue
			}
			// The alphanumeric shape needs both letters and digits.
			if i == len(contextShapes)-1 && !(hasLetter.MatchString(token) && hasDigit.MatchString(token)) {
				continue
			}
			return token, true
		}
	}

	return "", false
}

// contextWindow returns up to contextRadius characters on either side of
// the first occurrence of referenceCode, measured in runes.
func contextWindow(text, referenceCode string) string {
	byteIdx := strings.Index(text, referenceCode)
	runeIdx := utf8.RuneCountInString(text[:byteIdx])

	runes := []rune(text)
	start := max(runeIdx-contextRadius, 0)
	end := min(runeIdx+contextRadius, len(runes))

	return string(runes[start:end])
}

// likelyFalsePositive filters years, local landline prefixes and
// phone-number-length digit runs.
func likelyFalsePositive(token string) bool {
	return yearPattern.MatchString(token) ||
		areaCodePattern.MatchString(token) ||
		phonePattern.MatchString(token)
}
