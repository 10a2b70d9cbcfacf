/**
 * @description
 * Webhook signature verification for Mono deliveries. Mono signs each webhook
 * with hex-encoded HMAC-SHA512 of the raw request body under the shared
 * secret, sent in the mono-webhook-signature header.
 *
 * The signature must be checked against the raw, unparsed body bytes: a
 * re-serialized JSON body is not guaranteed to match what the provider signed
 * byte for byte.
 */
package monoclient

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
)

// VerifyWebhookSignature reports whether signature is the hex HMAC-SHA512 of
// rawBody under secret. The comparison is constant-time.
func VerifyWebhookSignature(secret, signature string, rawBody []byte) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
