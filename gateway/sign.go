package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// SignPayload 计算 HMAC-SHA256(secret, timestamp + "." + body) 的十六进制摘要。
func SignPayload(secret string, timestampMs int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestampMs, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPayload 常量时间比较签名。
func VerifyPayload(secret string, timestampMs int64, body []byte, signature string) bool {
	want := SignPayload(secret, timestampMs, body)
	return hmac.Equal([]byte(want), []byte(signature))
}
