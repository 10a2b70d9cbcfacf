package monoclient

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "whsec_test_secret"
	body := []byte(`{"event":"mono.events.account_updated","data":{"account":{"_id":"acc_1"}}}`)

	tests := []struct {
		name      string
		secret    string
		signature string
		body      []byte
		want      bool
	}{
		{
			name:      "valid signature",
			secret:    secret,
			signature: signBody(secret, body),
			body:      body,
			want:      true,
		},
		{
			name:      "wrong secret",
			secret:    secret,
			signature: signBody("whsec_other", body),
			body:      body,
			want:      false,
		},
		{
			name:      "tampered body",
			secret:    secret,
			signature: signBody(secret, body),
			body:      []byte(`{"event":"mono.events.account_updated","data":{"account":{"_id":"acc_2"}}}`),
			want:      false,
		},
		{
			name:      "garbage signature",
			secret:    secret,
			signature: "deadbeef",
			body:      body,
			want:      false,
		},
		{
			name:      "empty signature",
			secret:    secret,
			signature: "",
			body:      body,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifyWebhookSignature(tt.secret, tt.signature, tt.body)
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
