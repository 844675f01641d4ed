package gateway

import (
	"encoding/hex"
	"fmt"
)

func hexOf(b []byte) string {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return hex.EncodeToString(out)
}

func fmtAll(v any) string {
	return fmt.Sprintf("%v %+v %#v", v, v, v)
}
