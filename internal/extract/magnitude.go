package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoMagnitude is returned for sentinel values such as "N/A".
var ErrNoMagnitude = errors.New("extract: value is not a magnitude")

var suffixScale = map[byte]decimal.Decimal{
	'K': decimal.NewFromInt(1_000),
	'M': decimal.NewFromInt(1_000_000),
	'B': decimal.NewFromInt(1_000_000_000),
}

// ParseMagnitude expands a formatted amount such as "46.74K" or "1,2M" into a decimal.
func ParseMagnitude(v string) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "$"))
	if s == "" || !magnitudePattern.MatchString(s) {
		return decimal.Decimal{}, ErrNoMagnitude
	}

	scale := decimal.NewFromInt(1)
	last := strings.ToUpper(s[len(s)-1:])[0]
	if mult, ok := suffixScale[last]; ok {
		scale = mult
		s = s[:len(s)-1]
	}

	// "1,2" is a decimal comma; "1,200" is a thousands separator.
	if i := strings.LastIndexByte(s, ','); i >= 0 && len(s)-i-1 != 3 {
		s = s[:i] + "." + s[i+1:]
	}
	s = strings.ReplaceAll(s, ",", "")

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse magnitude %q: %w", v, err)
	}
	return amount.Mul(scale), nil
}
