package auth

import "time"

// requestStamp returns the AUTH_SYS credential's stamp field: an
// arbitrary value servers use only to detect verifier replay, conventionally
// the client's boot time or current time.
func requestStamp() int64 {
	return time.Now().Unix()
}
