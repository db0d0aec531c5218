package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func signRequest(authToken, fullURL string, params map[string]string) string {
	data := fullURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func runAuth(t *testing.T, token, signature, body string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/twilio/incoming", strings.NewReader(body))
	req.Host = "example.com"
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if signature != "" {
		req.Header.Set("X-Twilio-Signature", signature)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen map[string]string
	handler := TwilioAuth(func() string { return token })(func(c echo.Context) error {
		if p, ok := c.Get("twilioParams").(map[string]string); ok {
			seen = p
		}
		return c.String(http.StatusOK, "ok")
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec, seen
}

func TestTwilioAuth_ValidSignature(t *testing.T) {
	token := "secret"
	params := map[string]string{"CallSid": "CA1", "From": "+15550001111"}
	sig := signRequest(token, "https://example.com/twilio/incoming", params)

	rec, seen := runAuth(t, token, sig, "CallSid=CA1&From=%2B15550001111")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if seen["CallSid"] != "CA1" || seen["From"] != "+15550001111" {
		t.Fatalf("params not passed through: %v", seen)
	}
}

func TestTwilioAuth_InvalidSignature(t *testing.T) {
	rec, _ := runAuth(t, "secret", "bogus", "CallSid=CA1")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestTwilioAuth_MissingSignature(t *testing.T) {
	rec, _ := runAuth(t, "secret", "", "CallSid=CA1")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestTwilioAuth_NoTokenAcceptsUnverified(t *testing.T) {
	rec, seen := runAuth(t, "", "", "CallSid=CA1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if seen["CallSid"] != "CA1" {
		t.Fatalf("params not passed through: %v", seen)
	}
}

func TestTwilioAuth_NonTwilioPathSkipped(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := TwilioAuth(func() string { return "secret" })(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
