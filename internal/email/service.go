package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Service handles email sending via SMTP
type Service struct {
	host     string
	port     string
	from     string
	currency string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(host, port, from, currency string) *Service {
	return &Service{
		host:     host,
		port:     port,
		from:     from,
		currency: currency,
		sendMail: smtp.SendMail,
	}
}

// SendOrderConfirmation sends an order confirmation email
func (s *Service) SendOrderConfirmation(to string, c Confirmation) error {
	if c.Currency == "" {
		c.Currency = s.currency
	}
	body, err := BuildOrderConfirmationBody(c)
	if err != nil {
		return fmt.Errorf("failed to render confirmation for %s: %w", c.OrderID, err)
	}
	subject := fmt.Sprintf("Order confirmed: %s", c.OrderID)
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, body string) error {
	// header injection guard: recipients and subjects come from order data
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("invalid mail header value")
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.sendMail(addr, nil, s.from, []string{to}, []byte(msg))
}
