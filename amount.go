package x402

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Uint is an unsigned integer of up to 256 bits carried in decimal-string form.
//
// It is the single representation used for token amounts and unix timestamps
// in payloads. JSON input may be either a string or a number; numbers are
// rewritten to their decimal text, strings are kept as given so the
// validators can reject malformed ones. Output is always a JSON string.
type Uint string

// NewUint converts a non-negative big integer to a Uint.
func NewUint(v *big.Int) Uint {
	if v == nil {
		return ""
	}
	return Uint(v.String())
}

// UintFromUint64 converts a uint64 to a Uint.
func UintFromUint64(v uint64) Uint {
	return Uint(new(big.Int).SetUint64(v).String())
}

func (u Uint) String() string {
	return string(u)
}

// Int parses the value as a non-negative decimal integer.
func (u Uint) Int() (*big.Int, bool) {
	if u == "" {
		return nil, false
	}
	for _, c := range []byte(u) {
		if c < '0' || c > '9' {
			return nil, false
		}
	}
	return new(big.Int).SetString(string(u), 10)
}

// Uint256 parses the value and checks that it fits in 256 bits.
func (u Uint) Uint256() (*uint256.Int, error) {
	n, ok := u.Int()
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", string(u))
	}
	v, overflow := uint256.FromBig(n)
	if overflow {
		return nil, fmt.Errorf("value exceeds 256 bits: %s", string(u))
	}
	return v, nil
}

// Uint64 parses the value as a uint64, as used for unix timestamps and block numbers.
func (u Uint) Uint64() (uint64, error) {
	v, err := u.Uint256()
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("value exceeds 64 bits: %s", string(u))
	}
	return v.Uint64(), nil
}

// MarshalJSON always emits a JSON string.
func (u Uint) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(u))
}

// UnmarshalJSON accepts a JSON string, a JSON number or null.
func (u *Uint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = Uint(s)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	text := num.String()
	// Numbers too large for 256 bits stay verbatim for the validators to reject.
	if !withinUintBounds(text) {
		*u = Uint(text)
		return nil
	}
	if n, ok := new(big.Int).SetString(text, 10); ok {
		*u = Uint(n.String())
		return nil
	}
	// Exponent forms such as 1e6 are accepted when they are exact integers.
	f, _, err := big.ParseFloat(text, 10, 512, big.ToNearestEven)
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", num, err)
	}
	if !f.IsInt() {
		*u = Uint(num.String())
		return nil
	}
	n, _ := f.Int(nil)
	*u = Uint(n.String())
	return nil
}

// maxUintDigits is the decimal length of the largest 256-bit value.
const maxUintDigits = 78

// withinUintBounds reports whether a JSON number's text is small enough to
// expand: at most maxUintDigits digits, and a decimal exponent no larger
// than maxUintDigits in either direction.
func withinUintBounds(text string) bool {
	if len(text) > 2*maxUintDigits {
		return false
	}
	i := strings.IndexAny(text, "eE")
	if i < 0 {
		return len(text) <= maxUintDigits || strings.Contains(text, ".")
	}
	exp, err := strconv.Atoi(text[i+1:])
	return err == nil && exp <= maxUintDigits && exp >= -maxUintDigits
}

var errNegativeAmount = errors.New("amount must not be negative")

// FormatAmount scales an atomic token amount by the token decimals,
// e.g. 10000 with 6 decimals is "0.01". Trailing zeros are trimmed.
func FormatAmount(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, int32(-decimals)).String()
}

// ParseAmount converts a human-readable token amount such as "0.05" into
// atomic units. More fractional digits than the token supports is an error.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, errNegativeAmount
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	return scaled.BigInt(), nil
}
