package engineapi

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

func hexEncode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func hexEncodeUint(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

func hexEncodeBig(v *big.Int) string {
	return "0x" + v.Text(16)
}

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func hexDecodeFixed(s string, out []byte) error {
	b, err := hexDecode(s)
	if err != nil {
		return err
	}
	if len(b) != len(out) {
		return fmt.Errorf("engineapi: expected %d bytes, got %d", len(out), len(b))
	}
	copy(out, b)
	return nil
}

// hexDecodeUint parses a 0x-prefixed quantity. Quantities are minimally
// encoded on the Engine API wire ("0x1", not "0x01"), so this parses digits
// rather than byte pairs.
func hexDecodeUint(s string) (uint64, error) {
	t := strings.TrimPrefix(s, "0x")
	if t == "" {
		return 0, fmt.Errorf("engineapi: empty hex quantity")
	}
	return strconv.ParseUint(t, 16, 64)
}

func hexDecodeBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("engineapi: invalid hex big.Int %q", s)
	}
	return v, nil
}
