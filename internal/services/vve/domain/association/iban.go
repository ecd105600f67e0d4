package association

import (
	"math/big"
	"strings"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
)

// NormalizeIBAN removes spaces, uppercases and validates the mod-97 checksum.
func NormalizeIBAN(raw string) (string, error) {
	iban := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if len(iban) < 15 || len(iban) > 34 {
		return "", apperrors.Newf(apperrors.CodeInvalidIBAN, "iban %q has invalid length", raw)
	}
	for i, r := range iban {
		switch {
		case i < 2 && (r < 'A' || r > 'Z'):
			return "", apperrors.Newf(apperrors.CodeInvalidIBAN, "iban %q has invalid country code", raw)
		case i >= 2 && i < 4 && (r < '0' || r > '9'):
			return "", apperrors.Newf(apperrors.CodeInvalidIBAN, "iban %q has invalid check digits", raw)
		case (r < 'A' || r > 'Z') && (r < '0' || r > '9'):
			return "", apperrors.Newf(apperrors.CodeInvalidIBAN, "iban %q has invalid characters", raw)
		}
	}
	if !validChecksum(iban) {
		return "", apperrors.Newf(apperrors.CodeInvalidIBAN, "iban %q fails checksum", raw)
	}
	return iban, nil
}

func validChecksum(iban string) bool {
	rearranged := iban[4:] + iban[:4]
	var digits strings.Builder
	for _, r := range rearranged {
		if r >= 'A' && r <= 'Z' {
			digits.WriteString(big.NewInt(int64(r - 'A' + 10)).String())
			continue
		}
		digits.WriteRune(r)
	}
	value, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(value, big.NewInt(97)).Int64() == 1
}
