package notify

import (
	"context"
	"fmt"
	"strings"

	resend "github.com/resend/resend-go/v3"
)

// EmailProvider implements Provider for the Resend email API.
type EmailProvider struct {
	from   string
	client *resend.Client
}

func NewEmailProvider(apiKey, from string) *EmailProvider {
	return &EmailProvider{
		from:   from,
		client: resend.NewClient(apiKey),
	}
}

func (p *EmailProvider) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	if p.client == nil {
		return nil, Permanent(fmt.Errorf("resend client not configured"))
	}
	if msg == nil || strings.TrimSpace(msg.To) == "" {
		return nil, Permanent(fmt.Errorf("email recipient is required"))
	}
	if msg.Body == "" {
		return nil, Permanent(fmt.Errorf("email body is empty"))
	}

	params := &resend.SendEmailRequest{
		From:    p.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Body,
	}

	sent, err := p.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to send email via resend: %w", err)
	}
	return &SendResult{ProviderMessageID: sent.Id}, nil
}

// Healthy checks API reachability with a key-scoped read call.
func (p *EmailProvider) Healthy(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("resend client not configured")
	}
	if _, err := p.client.ApiKeys.ListWithContext(ctx); err != nil {
		return fmt.Errorf("resend unreachable: %w", err)
	}
	return nil
}
