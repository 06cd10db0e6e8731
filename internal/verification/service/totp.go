package service

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const (
	totpStep   = 30 * time.Second
	totpDigits = 6
	// totpSkew tolerates one step of clock drift in either direction.
	totpSkew = 1
)

// totpMatches checks a 6-digit RFC 6238 code against the base32 secret and
// returns the time step that produced the match so the caller can mark it
// consumed.
func totpMatches(secret string, code string, now time.Time) (int64, bool) {
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).
		DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return 0, false
	}
	code = strings.TrimSpace(code)
	if len(code) != totpDigits {
		return 0, false
	}

	counter := now.Unix() / int64(totpStep.Seconds())
	for delta := int64(-totpSkew); delta <= totpSkew; delta++ {
		expected := hotp(key, uint64(counter+delta))
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return counter + delta, true
		}
	}
	return 0, false
}

// hotp implements RFC 4226 dynamic truncation.
func hotp(key []byte, counter uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%0*d", totpDigits, value%1000000)
}
