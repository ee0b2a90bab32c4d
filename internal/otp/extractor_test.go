package otp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		ref    string
		want   string
		wantOK bool
	}{
		{
			name:   "thai label",
			text:   "รหัส OTP: 123456 สำหรับการทำธุรกรรม ABC12",
			ref:    "ABC12",
			want:   "123456",
			wantOK: true,
		},
		{
			name:   "english label",
			text:   "Your OTP code: 789012 for reference ABC12",
			ref:    "ABC12",
			want:   "789012",
			wantOK: true,
		},
		{
			name:   "verification code label",
			text:   "Your verification code: 456789 ref: ABC12",
			ref:    "ABC12",
			want:   "456789",
			wantOK: true,
		},
		{
			name:   "label is case insensitive",
			text:   "ONE-TIME PASSWORD 4455 (ref XYZ99)",
			ref:    "XYZ99",
			want:   "4455",
			wantOK: true,
		},
		{
			name:   "generic six digits near reference",
			text:   "Transaction ABC12 requires code 123456 to complete",
			ref:    "ABC12",
			want:   "123456",
			wantOK: true,
		},
		{
			name:   "generic four digits near reference",
			text:   "Please use 1234 to verify transaction ABC12",
			ref:    "ABC12",
			want:   "1234",
			wantOK: true,
		},
		{
			name:   "alphanumeric token",
			text:   "Use code ABC123 for transaction ABC12",
			ref:    "ABC12",
			want:   "ABC123",
			wantOK: true,
		},
		{
			name:   "reference code missing",
			text:   "Your OTP code: 123456",
			ref:    "NOTFOUND",
			wantOK: false,
		},
		{
			name:   "reference present but no candidate",
			text:   "Reference ABC12 found but no valid OTP here",
			ref:    "ABC12",
			wantOK: false,
		},
		{
			name:   "year is skipped in favour of six digits",
			text:   "Transaction ABC12 from 2023 with code 123456",
			ref:    "ABC12",
			want:   "123456",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.text, tt.ref)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_NoReferenceNeverMatches(t *testing.T) {
	texts := []string{
		"",
		"OTP code: 123456",
		"verification code: 4321 and 654321 and AB12CD",
		strings.Repeat("999999 ", 100),
	}

	for _, text := range texts {
		got, ok := Extract(text, "QQ7QQ")
		assert.False(t, ok, text)
		assert.Empty(t, got)
	}
}

func TestExtract_LabelBeatsBareNumber(t *testing.T) {
	text := "Ref ABC12. Account 987654 was credited. OTP code: 112233"

	got, ok := Extract(text, "ABC12")
	assert.True(t, ok)
	assert.Equal(t, "112233", got)
}

func TestExtract_SixDigitsBeforeFourDigits(t *testing.T) {
	text := "Use 4321 or 654321 for ABC12"

	got, ok := Extract(text, "ABC12")
	assert.True(t, ok)
	assert.Equal(t, "654321", got)
}

func TestExtract_AlphanumericNeedsLettersAndDigits(t *testing.T) {
	_, ok := Extract("HELLO from MYBANK, ref ABC12", "ABC12")
	assert.False(t, ok)

	got, ok := Extract("HELLO, use X9Y8Z for ABC12", "ABC12")
	assert.True(t, ok)
	assert.Equal(t, "X9Y8Z", got)
}

func TestExtract_SkipsYear(t *testing.T) {
	text := "Ref ABC12 issued 2024, your PIN is 5831"

	got, ok := Extract(text, "ABC12")
	assert.True(t, ok)
	assert.Equal(t, "5831", got)
}

func TestExtract_SkipsAreaCodePrefix(t *testing.T) {
	text := "Call 021234 or use 778899 for ABC12"

	got, ok := Extract(text, "ABC12")
	assert.True(t, ok)
	assert.Equal(t, "778899", got)
}

func TestExtract_IgnoresNumbersOutsideWindow(t *testing.T) {
	text := "Code 123456" + strings.Repeat(" filler", 60) + " ref ABC12 done"

	_, ok := Extract(text, "ABC12")
	assert.False(t, ok)
}

func TestExtract_WindowCountsCharactersNotBytes(t *testing.T) {
	// 150 Thai runes are 450 bytes but still inside the window.
	text := "PIN 5566 " + strings.Repeat("ก", 150) + " ABC12"

	got, ok := Extract(text, "ABC12")
	assert.True(t, ok)
	assert.Equal(t, "5566", got)
}

func TestLikelyFalsePositive(t *testing.T) {
	assert.True(t, likelyFalsePositive("2031"))
	assert.True(t, likelyFalsePositive("0212"))
	assert.True(t, likelyFalsePositive("66812345678"))
	assert.False(t, likelyFalsePositive("2019"))
	assert.False(t, likelyFalsePositive("123456"))
	assert.False(t, likelyFalsePositive("0123"))
}
