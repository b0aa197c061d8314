package ses

import (
	"context"
	"fmt"
	"html"
	"net/url"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"fraclaims/internal/domain"
	"fraclaims/internal/port"
)

type sesSender struct {
	client      *sesv2.Client
	fromAddress string
	fromName    string
	frontendURL string
}

// NewSESSender creates a new SES-backed EmailSender.
func NewSESSender(region, fromAddress, fromName, frontendURL string) (port.EmailSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES: %w", err)
	}
	client := sesv2.NewFromConfig(cfg)
	return &sesSender{
		client:      client,
		fromAddress: fromAddress,
		fromName:    fromName,
		frontendURL: frontendURL,
	}, nil
}

func (s *sesSender) SendReviewRequest(ctx context.Context, toEmail string, outcome *domain.ProcessingOutcome) error {
	reviewURL := ReviewURL(s.frontendURL, outcome.DocumentID)
	confidence := FormatConfidence(outcome)

	subject := fmt.Sprintf("Document %s needs manual review", outcome.DocumentID)
	htmlBody := buildReviewHTML(outcome.DocumentID, confidence, reviewURL)
	textBody := fmt.Sprintf("A claim document could not be verified automatically.\n\nDocument: %s\nConfidence: %s\n\nReview it here:\n%s\n\nFRA Claims", outcome.DocumentID, confidence, reviewURL)

	from := fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &from,
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject},
				Body: &types.Body{
					Html: &types.Content{Data: &htmlBody},
					Text: &types.Content{Data: &textBody},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SES SendEmail: %w", err)
	}
	return nil
}

// ReviewURL returns the frontend review page for a document.
func ReviewURL(frontendURL, documentID string) string {
	return fmt.Sprintf("%s/documents/%s/review", frontendURL, url.PathEscape(documentID))
}

// FormatConfidence renders the outcome's overall confidence for humans.
func FormatConfidence(outcome *domain.ProcessingOutcome) string {
	if outcome.Result == nil || outcome.Result.OverallConfidence == nil {
		return "not reported"
	}
	return fmt.Sprintf("%.0f%%", *outcome.Result.OverallConfidence*100)
}

func buildReviewHTML(documentID, confidence, reviewURL string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Manual review needed</h2>
  <p>A claim document could not be verified automatically and is waiting for a reviewer.</p>
  <p><strong>Document:</strong> %s<br><strong>Confidence:</strong> %s</p>
  <p style="text-align: center; margin: 30px 0;">
    <a href="%s" style="background-color: #4F46E5; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">Review Document</a>
  </p>
  <p>Or copy and paste this link into your browser:</p>
  <p style="word-break: break-all; color: #666;">%s</p>
  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #999; font-size: 12px;">FRA Claims - Document Verification</p>
</body>
</html>`, html.EscapeString(documentID), confidence, reviewURL, reviewURL)
}
