package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMSProvider implements Provider for the Twilio messaging API.
type SMSProvider struct {
	from   string
	client *twilio.RestClient
}

func NewSMSProvider(accountSID, authToken, from string) *SMSProvider {
	return &SMSProvider{
		from: from,
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
	}
}

func (p *SMSProvider) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	if p.client == nil {
		return nil, Permanent(fmt.Errorf("twilio client not configured"))
	}
	if msg == nil || strings.TrimSpace(msg.To) == "" {
		return nil, Permanent(fmt.Errorf("sms recipient is required"))
	}
	if msg.Body == "" {
		return nil, Permanent(fmt.Errorf("sms body is empty"))
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(e164(msg.To))
	params.SetFrom(p.from)
	params.SetBody(msg.Body)

	sent, err := p.client.Api.CreateMessage(params)
	if err != nil {
		return nil, classifyTwilioError(err)
	}

	result := &SendResult{}
	if sent.Sid != nil {
		result.ProviderMessageID = *sent.Sid
	}
	return result, nil
}

// Healthy reports configuration validity. Twilio has no cheap
// unauthenticated ping, so reachability is learned from real sends.
func (p *SMSProvider) Healthy(ctx context.Context) error {
	_ = ctx
	if p.client == nil || strings.TrimSpace(p.from) == "" {
		return fmt.Errorf("twilio client not configured")
	}
	return nil
}

// classifyTwilioError marks 4xx responses permanent: a malformed or
// unreachable number will not improve with retries.
func classifyTwilioError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) && restErr.Status >= 400 && restErr.Status < 500 && restErr.Status != 429 {
		return Permanent(fmt.Errorf("twilio rejected message: %w", err))
	}
	return fmt.Errorf("failed to send sms via twilio: %w", err)
}

// e164 renders a canonical 11-digit number in +E.164 form.
func e164(phone string) string {
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+" + phone
}
