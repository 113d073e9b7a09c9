package mailer

import (
	"fmt"
	"log"

	"github.com/wneessen/go-mail"

	"github.com/gamevault/backend/internal/config"
	"github.com/gamevault/backend/internal/models"
)

// Mailer sends purchase-confirmation emails. Delivery is best-effort; a send
// failure never rolls back the purchase.
type Mailer struct {
	client *mail.Client
	from   string
	appURL string
}

// Default is the package-level default mailer
var Default *Mailer

// NewMailer creates an SMTP-backed mailer
func NewMailer(cfg *config.Config) *Mailer {
	if cfg == nil || cfg.SMTPHost == "" {
		log.Printf("[MAIL] SMTP not configured - skipping initialization")
		return nil
	}

	client, err := mail.NewClient(cfg.SMTPHost,
		mail.WithPort(cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.SMTPUsername),
		mail.WithPassword(cfg.SMTPPassword),
	)
	if err != nil {
		log.Printf("[MAIL] Could not initialize smtp client: %v", err)
		return nil
	}

	return &Mailer{
		client: client,
		from:   cfg.EmailFrom,
		appURL: cfg.AppURL,
	}
}

// SetDefault sets the package-level default mailer
func SetDefault(m *Mailer) {
	Default = m
}

// SendPurchaseConfirmation emails the buyer after a successful payment.
func (m *Mailer) SendPurchaseConfirmation(receipt *models.PurchaseReceipt) error {
	if m == nil {
		return fmt.Errorf("mailer not initialized")
	}

	gameURL := fmt.Sprintf("%s/games/%s", m.appURL, receipt.GameSlug)

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(receipt.UserEmail); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(fmt.Sprintf("Payment Successful - %s", receipt.GameTitle))
	msg.SetBodyString(mail.TypeTextHTML, fmt.Sprintf(`
		<h1>Payment Successful!</h1>
		<p>Hi <strong>%s</strong>,</p>
		<p>Thank you for your purchase! Your payment has been successfully processed.</p>
		<h3>Order Details:</h3>
		<ul>
			<li><strong>Game:</strong> %s</li>
			<li><strong>Amount:</strong> Rp %d</li>
			<li><strong>Order ID:</strong> %s</li>
			<li><strong>Payment Method:</strong> %s</li>
		</ul>
		<p><a href="%s">Play your game now</a></p>`,
		receipt.UserName, receipt.GameTitle, receipt.Amount, receipt.OrderID, receipt.PaymentMethod, gameURL))

	if err := m.client.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send confirmation email: %w", err)
	}

	log.Printf("[MAIL] Purchase confirmation sent: order=%s to=%s", receipt.OrderID, receipt.UserEmail)
	return nil
}
