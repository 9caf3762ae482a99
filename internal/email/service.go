// Package email sends transactional mail for OjaChat over plain SMTP.
package email

import (
	"fmt"
	"log"
	"net/smtp"
)

// Service sends HTML mail through a single SMTP endpoint.
type Service struct {
	host string
	port string
	from string
}

func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
	}
}

// SendOrderConfirmation mails the order summary. The subject carries a short
// order reference; the full id appears in the body.
func (s *Service) SendOrderConfirmation(to, orderID string, total int, items []OrderItem) error {
	shortID := orderID
	if len(orderID) > 8 {
		shortID = orderID[:8]
	}
	subject := fmt.Sprintf("Your OjaChat order is confirmed (order %s)", shortID)
	body := BuildOrderConfirmationBody(orderID, total, items)

	if err := s.send(to, subject, body); err != nil {
		return fmt.Errorf("send order confirmation: %w", err)
	}
	log.Printf("[Email] Order confirmation for %s sent to %s", shortID, to)
	return nil
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
}
