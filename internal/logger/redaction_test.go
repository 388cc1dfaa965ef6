package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactor(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name     string
		input    string
		contains string
		hidden   string
	}{
		{"openai key", "key sk-abcdefghijklmnopqrstuvwxyz123", "[REDACTED]", "sk-abcdefghijklmnopqrstuvwxyz123"},
		{"anthropic key", "sk-ant-REDACTED", "[REDACTED]", "abcdefghijklmnopqrstuvwxyz"},
		{"bearer token", "Authorization: Bearer merchant_secret.123", "[REDACTED]", "merchant_secret.123"},
		{"payment token", `{"paymentToken":"tok_visa_4242"}`, "[REDACTED]", "tok_visa_4242"},
		{"api key field", `{"api_key":"acp-test-key"}`, `"api_key":"[REDACTED]"`, "acp-test-key"},
		{"client secret", "client_secret=cs_live_abc", `client_secret=[REDACTED]`, "cs_live_abc"},
		{"grouped card number", "card 4242 4242 4242 4242 declined", "card [REDACTED] declined", "4242 4242"},
		{"bare card number", `"number":"4000000000000002"`, "[REDACTED]", "4000000000000002"},
		{"plain text", "searching for keyboard", "searching for keyboard", "[REDACTED]"},
		{"short numbers", "qty 2 of sku 12345 for 29.99", "sku 12345 for 29.99", "[REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Redact(tt.input)
			assert.Contains(t, out, tt.contains)
			assert.NotContains(t, out, tt.hidden)
		})
	}
}

func TestRedactorAddPattern(t *testing.T) {
	r := NewRedactor()

	require.NoError(t, r.AddPattern(`ord_[a-z0-9]+`))
	assert.Equal(t, "order [REDACTED]", r.Redact("order ord_abc123"))

	require.NoError(t, r.AddPattern(`(?P<keep>session=)\w+`))
	assert.Equal(t, "session=[REDACTED]", r.Redact("session=cs_9"))

	assert.Error(t, r.AddPattern(`(`))
}

func TestRedactingWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactor().Wrap(&buf)

	input := []byte("Bearer abc.def")
	n, err := w.Write(input)
	require.NoError(t, err)

	assert.Equal(t, len(input), n)
	assert.Equal(t, "Bearer [REDACTED]", buf.String())
}
