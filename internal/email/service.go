package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"kassenwart/internal/config"
	"kassenwart/internal/logger"
	"kassenwart/internal/metrics"
)

const (
	queueKey  = "emails"
	failedKey = "emails:failed"
	maxTries  = 3
)

type EmailJob struct {
	Type    string    `json:"type"`
	To      string    `json:"to"`
	Name    string    `json:"name"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

type Service struct {
	redis    *redis.Client
	from     string
	fromName string
	smtpHost string
	smtpPort string
	smtpUser string
	smtpPass string
}

func New(cfg *config.Config) *Service {
	return &Service{
		redis: redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		}),
		from:     cfg.EmailFrom,
		fromName: cfg.EmailFromName,
		smtpHost: cfg.SMTPHost,
		smtpPort: cfg.SMTPPort,
		smtpUser: cfg.SMTPUser,
		smtpPass: cfg.SMTPPass,
	}
}

func (s *Service) enqueue(ctx context.Context, emailType, to, name, subject, body string) error {
	job := EmailJob{
		Type:    emailType,
		To:      to,
		Name:    name,
		Subject: subject,
		Body:    body,
		Created: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	if err := s.redis.LPush(ctx, queueKey, string(data)).Err(); err != nil {
		logger.Errorf("Failed to queue %s email to %s: %v", emailType, to, err)
		metrics.RecordEmail(emailType, "queue_error")
		return err
	}

	logger.Infof("Email queued: %s to %s", subject, to)
	metrics.RecordEmail(emailType, "queued")
	return nil
}

// Send queues an arbitrary mail.
func (s *Service) Send(ctx context.Context, to, name, subject, body string) error {
	return s.enqueue(ctx, "manual", to, name, subject, body)
}

// Start runs the delivery worker until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	logger.Info("email worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("email worker stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}
	metrics.EmailQueueLength.Set(float64(s.QueueLength(ctx)))

	var job EmailJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Errorf("Bad email data: %v", err)
		return
	}

	job.Tries++
	if err := s.sendNow(job); err != nil {
		logger.Errorf("Failed to send email to %s: %v", job.To, err)

		if job.Tries < maxTries {
			time.Sleep(5 * time.Second)
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), queueKey, string(data))
			return
		}

		metrics.RecordEmail(job.Type, "failed")
		s.saveFailed(job, err)
		return
	}

	metrics.RecordEmail(job.Type, "sent")
	logger.Infof("Email sent to %s", job.To)
}

func (s *Service) sendNow(job EmailJob) error {
	message := fmt.Sprintf("From: %s <%s>\r\n", s.fromName, s.from)
	message += fmt.Sprintf("To: %s\r\n", job.To)
	message += fmt.Sprintf("Subject: %s\r\n", job.Subject)
	message += "\r\n" + job.Body

	var auth smtp.Auth
	if s.smtpUser != "" && s.smtpPass != "" {
		auth = smtp.PlainAuth("", s.smtpUser, s.smtpPass, s.smtpHost)
	}

	addr := s.smtpHost + ":" + s.smtpPort
	return smtp.SendMail(addr, auth, s.from, []string{job.To}, []byte(message))
}

func (s *Service) saveFailed(job EmailJob, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), failedKey, string(data))
	logger.Errorf("Email moved to failed queue: %s", job.To)
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}

// SendPaymentReceipt confirms a booked payment and the resulting
// balance. Satisfies ledger.Notifier.
func (s *Service) SendPaymentReceipt(ctx context.Context, to, name string, amount, newBalance decimal.Decimal) error {
	subject := "Zahlungseingang bestätigt"
	body := fmt.Sprintf(`Hallo %s,

wir haben Deine Zahlung über %s EUR erhalten und Deinem Konto
gutgeschrieben. Dein aktuelles Guthaben beträgt %s EUR.

Viele Grüße
Dein Kassenwart`, name, amount.StringFixed(2), newBalance.StringFixed(2))

	return s.enqueue(ctx, "payment_receipt", to, name, subject, body)
}

// SendDebitPrenotification announces an upcoming SEPA collection, as
// required before the debit is submitted. Satisfies
// lastschrift.Notifier.
func (s *Service) SendDebitPrenotification(ctx context.Context, to, name string, amount decimal.Decimal, paymentDate time.Time) error {
	subject := "Ankündigung SEPA-Lastschrift"
	body := fmt.Sprintf(`Hallo %s,

wir werden am %s einen Betrag von %s EUR (Mitgliedsbeitrag und
Spende) per SEPA-Lastschrift von Deinem Konto einziehen.

Bitte sorge für ausreichende Deckung.

Viele Grüße
Dein Kassenwart`, name, paymentDate.Format("02.01.2006"), amount.StringFixed(2))

	return s.enqueue(ctx, "debit_prenotification", to, name, subject, body)
}

// SendMandateRevoked confirms the end of a direct debit authorization.
func (s *Service) SendMandateRevoked(ctx context.Context, to, name string) error {
	subject := "SEPA-Mandat widerrufen"
	body := fmt.Sprintf(`Hallo %s,

Dein SEPA-Lastschriftmandat wurde widerrufen. Es werden keine
weiteren Einzüge von Deinem Konto vorgenommen.

Viele Grüße
Dein Kassenwart`, name)

	return s.enqueue(ctx, "mandate_revoked", to, name, subject, body)
}
