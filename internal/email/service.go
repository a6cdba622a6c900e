package email

import (
	"errors"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/example/clinic-pos/internal/domain/order"
)

var ErrInvalidRecipient = errors.New("invalid recipient address")

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
		send: smtp.SendMail,
	}
}

// SendReceipt mails the HTML receipt of a completed order.
func (s *Service) SendReceipt(to string, rec order.Record) error {
	addr, err := recipient(to)
	if err != nil {
		return err
	}
	body, err := BuildReceiptBody(rec)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Your receipt %s", rec.Order.Number)
	return s.deliver(addr, subject, body)
}

// recipient accepts a bare address or "Name <address>" and returns the
// address. Header separators are rejected outright.
func recipient(to string) (string, error) {
	if strings.ContainsAny(to, "\r\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecipient, to)
	}
	parsed, err := mail.ParseAddress(to)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecipient, to)
	}
	return parsed.Address, nil
}

func (s *Service) deliver(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	if err := s.send(addr, nil, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send receipt to %s: %w", to, err)
	}
	return nil
}
