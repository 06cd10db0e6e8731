package service

import (
	"testing"
	"time"
)

// Vectors from RFC 6238 appendix B, SHA-1 rows truncated to 6 digits.
func TestTOTPMatchesReferenceVectors(t *testing.T) {
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ" // base32("12345678901234567890")

	cases := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}
	for _, tc := range cases {
		now := time.Unix(tc.unix, 0).UTC()
		step, ok := totpMatches(secret, tc.code, now)
		if !ok {
			t.Errorf("code %s at t=%d did not match", tc.code, tc.unix)
			continue
		}
		if want := tc.unix / 30; step != want {
			t.Errorf("code %s at t=%d matched step %d, want %d", tc.code, tc.unix, step, want)
		}
	}
}

func TestTOTPToleratesOneStepOfSkew(t *testing.T) {
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

	// 287082 is the code for t=59; it must still verify one step later and
	// must be rejected two steps later.
	step, ok := totpMatches(secret, "287082", time.Unix(89, 0).UTC())
	if !ok {
		t.Error("code rejected inside the skew window")
	}
	if step != 1 {
		t.Errorf("expected the issuing step 1, got %d", step)
	}
	if _, ok := totpMatches(secret, "287082", time.Unix(149, 0).UTC()); ok {
		t.Error("code accepted outside the skew window")
	}
}

func TestTOTPRejectsMalformedInput(t *testing.T) {
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	now := time.Unix(59, 0).UTC()

	if _, ok := totpMatches(secret, "28708", now); ok {
		t.Error("short code accepted")
	}
	if _, ok := totpMatches("not-base32!", "287082", now); ok {
		t.Error("invalid secret accepted")
	}
}
