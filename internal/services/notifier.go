package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// Notifier sends best-effort admin notifications over Telegram. Every
// send failure is logged and swallowed; a notification must never block
// or roll back the operation that triggered it.
type Notifier struct {
	botToken    string
	adminChatID string
}

// NewNotifier creates a Notifier.
func NewNotifier(botToken, adminChatID string) *Notifier {
	return &Notifier{
		botToken:    botToken,
		adminChatID: adminChatID,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to the specified chat.
func (n *Notifier) SendMessage(chatID, text string) error {
	if n.botToken == "" {
		log.Println("[Notifier] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Notifier] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Notifier] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (n *Notifier) SendToAdmin(text string) error {
	if n.adminChatID == "" {
		log.Println("[Notifier] Admin chat ID not configured")
		return nil
	}
	return n.SendMessage(n.adminChatID, text)
}

// OrderNotification contains order data for the admin notification.
type OrderNotification struct {
	OrderCode  string
	UserName   string
	UserPhone  string
	ItemCount  int
	TotalPrice float64
	Status     string
}

// NotifyNewOrder announces a freshly placed order to the admin chat.
func (n *Notifier) NotifyNewOrder(order OrderNotification) {
	if n.adminChatID == "" {
		return
	}

	message := fmt.Sprintf(`<b>🛒 NEW ORDER</b>
<b>Code:</b> %s
<b>Customer:</b> %s
<b>Phone:</b> %s
<b>Items:</b> %d
<b>Total:</b> %.2f
<b>Status:</b> %s`,
		order.OrderCode,
		order.UserName,
		order.UserPhone,
		order.ItemCount,
		order.TotalPrice,
		order.Status,
	)

	if err := n.SendToAdmin(strings.TrimSpace(message)); err != nil {
		log.Printf("[Notifier] New order notification failed: %v", err)
	}
}

// NotifyInvoiceStatus announces an invoice status transition.
func (n *Notifier) NotifyInvoiceStatus(invoiceNumber, oldStatus, newStatus, reason string) {
	if n.adminChatID == "" {
		return
	}

	message := fmt.Sprintf(`<b>🧾 INVOICE %s</b>
<b>Status:</b> %s → %s`, invoiceNumber, oldStatus, newStatus)
	if reason != "" {
		message += fmt.Sprintf("\n<b>Reason:</b> %s", reason)
	}

	if err := n.SendToAdmin(message); err != nil {
		log.Printf("[Notifier] Invoice status notification failed: %v", err)
	}
}

// NotifyPayment announces a recorded invoice payment.
func (n *Notifier) NotifyPayment(invoiceNumber string, amount float64, method, paymentStatus string) {
	if n.adminChatID == "" {
		return
	}

	message := fmt.Sprintf(`<b>💰 PAYMENT RECEIVED</b>
<b>Invoice:</b> %s
<b>Amount:</b> %.2f
<b>Method:</b> %s
<b>Payment status:</b> %s`,
		invoiceNumber, amount, method, paymentStatus)

	if err := n.SendToAdmin(message); err != nil {
		log.Printf("[Notifier] Payment notification failed: %v", err)
	}
}
