package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/spf13/cast"

	"theater-site/internal/services/provider"
	"theater-site/internal/status"
	"theater-site/models"
)

type notificationBody struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID any `json:"id"`
	} `json:"data"`
}

// ParseNotification reads the payment id from the query (data.id, then id)
// and falls back to the JSON body. A body that fails to parse is ignored as
// long as the query carries the id.
func (c *Client) ParseNotification(r *http.Request, body []byte) (*provider.Notification, error) {
	q := r.URL.Query()
	queryID := q.Get("data.id")
	if queryID == "" {
		queryID = q.Get("id")
	}
	kind := q.Get("type")
	if kind == "" {
		kind = q.Get("topic")
	}

	var parsed notificationBody
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			slog.Warn("mercadopago: unparseable notification body", "error", err)
		}
	}
	if kind == "" {
		kind = parsed.Type
	}
	if kind == "" {
		kind = parsed.Topic
	}

	paymentID := queryID
	if paymentID == "" {
		paymentID = cast.ToString(parsed.Data.ID)
	}
	if paymentID == "" {
		return nil, fmt.Errorf("%w: missing payment id", status.ErrMalformedNotification)
	}

	if err := c.verifySignature(r, queryID); err != nil {
		return nil, err
	}

	if kind == "" {
		kind = provider.NotificationPayment
	}
	return &provider.Notification{
		Provider:  models.ProviderMercadoPago,
		Type:      kind,
		PaymentID: paymentID,
	}, nil
}

var alphanumeric = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// verifySignature checks the x-signature header: "ts=<ts>,v1=<hex hmac>"
// over the manifest "id:<data.id>;request-id:<x-request-id>;ts:<ts>;". Parts
// whose value is absent are left out of the manifest.
func (c *Client) verifySignature(r *http.Request, dataID string) error {
	if c.webhookSecret == "" {
		return provider.CheckUnsigned(c.Name(), c.requireSignature)
	}

	ts, v1 := parseSignatureHeader(r.Header.Get("x-signature"))
	if ts == "" || v1 == "" {
		return fmt.Errorf("%w: missing x-signature", status.ErrInvalidSignature)
	}

	expected := Sign(c.webhookSecret, dataID, r.Header.Get("x-request-id"), ts)
	if !hmac.Equal([]byte(strings.ToLower(v1)), []byte(expected)) {
		return status.ErrInvalidSignature
	}
	return nil
}

func parseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	return ts, v1
}

// Sign computes the hex HMAC-SHA256 MercadoPago puts in the v1 field.
func Sign(secret, dataID, requestID, ts string) string {
	if alphanumeric.MatchString(dataID) {
		dataID = strings.ToLower(dataID)
	}

	var manifest strings.Builder
	if dataID != "" {
		manifest.WriteString("id:" + dataID + ";")
	}
	if requestID != "" {
		manifest.WriteString("request-id:" + requestID + ";")
	}
	manifest.WriteString("ts:" + ts + ";")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest.String()))
	return hex.EncodeToString(mac.Sum(nil))
}
