// README: Delivery OTP generation and matching.
package request

import (
	"crypto/rand"
	"crypto/subtle"
)

// GenerateOTP returns a numeric code of the given length. Leading zeros are
// valid; the code is a string end to end so they survive transport.
func GenerateOTP(length int) string {
	buf := make([]byte, length)
	_, _ = rand.Read(buf)
	for i := range buf {
		buf[i] = '0' + buf[i]%10
	}
	return string(buf)
}

// ValidOTPShape reports whether code looks like an OTP of the given length.
// Shape failures are rejected before any store lookup.
func ValidOTPShape(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// otpMatches compares in constant time; mismatch responses must not leak
// how close the guess was.
func otpMatches(stored, submitted string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}
