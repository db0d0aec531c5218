// Package telephony places outbound calls through the Twilio REST API.
package telephony

import (
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Dialer starts outbound calls that run the given webhook's TwiML when
// answered.
type Dialer struct {
	config Config
	client *twilio.RestClient
}

func NewDialer(config Config) *Dialer {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSID,
		Password: config.AuthToken,
	})
	return &Dialer{config: config, client: client}
}

// Call dials the number and points the answered call at webhookURL. It
// returns the new call SID.
func (d *Dialer) Call(to, webhookURL string) (string, error) {
	if d.config.AccountSID == "" || d.config.AuthToken == "" {
		return "", fmt.Errorf("missing Twilio credentials: TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required")
	}
	if d.config.FromNumber == "" {
		return "", fmt.Errorf("missing TWILIO_FROM_NUMBER")
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(d.config.FromNumber)
	params.SetUrl(webhookURL)

	resp, err := d.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("failed to create call: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("call created without a SID")
	}
	return *resp.Sid, nil
}
