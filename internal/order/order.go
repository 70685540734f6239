package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Method is the payment method of an order.
type Method string

const (
	MethodCard Method = "CARD"
	MethodPix  Method = "PIX"
)

// ParseMethod accepts the spellings used by checkout clients ("card", "credit_card", "pix").
func ParseMethod(s string) (Method, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CARD", "CREDIT_CARD", "CREDITCARD":
		return MethodCard, nil
	case "PIX":
		return MethodPix, nil
	case "":
		return "", fmt.Errorf("método de pagamento não pode estar vazio")
	default:
		return "", fmt.Errorf("método de pagamento inválido: %q", s)
	}
}

type Address struct {
	Street       string `json:"street"`
	Number       string `json:"number,omitempty"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
}

type Customer struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	CPF     string   `json:"cpf"`
	Phone   string   `json:"phone,omitempty"`
	Address *Address `json:"address,omitempty"`
}

// Product is the catalogue entry an order is placed for, including its
// manual status override.
type Product struct {
	ID                   int64           `json:"id"`
	Name                 string          `json:"name"`
	Slug                 string          `json:"slug"`
	Price                decimal.Decimal `json:"price"`
	IsDigital            bool            `json:"isDigital"`
	OverrideGlobalStatus bool            `json:"overrideGlobalStatus"`
	CustomManualStatus   string          `json:"customManualStatus,omitempty"`
}

// CardDetails is the masked card snapshot stored on CARD orders.
type CardDetails struct {
	Brand  string `json:"brand"`
	Last4  string `json:"last4"`
	Expiry string `json:"expiry,omitempty"` // MM/YY
}

// PixDetails is the QR code snapshot stored on PIX orders.
type PixDetails struct {
	QRCode         string    `json:"qrCode"`
	QRCodeImage    string    `json:"qrCodeImage,omitempty"`
	ExpirationDate time.Time `json:"expirationDate"`
}

// Order is the durable record of a checkout attempt.
type Order struct {
	ID               int64           `json:"id"`
	Customer         Customer        `json:"customer"`
	ProductID        int64           `json:"productId"`
	ProductName      string          `json:"productName"`
	Price            decimal.Decimal `json:"price"`
	IsDigitalProduct bool            `json:"isDigitalProduct"`
	Method           Method          `json:"paymentMethod"`
	Status           Status          `json:"paymentStatus"`
	PaymentID        string          `json:"paymentId,omitempty"`
	ChargeID         string          `json:"chargeId,omitempty"`
	Card             *CardDetails    `json:"cardDetails,omitempty"`
	Pix              *PixDetails     `json:"pixDetails,omitempty"`
	DeviceType       DeviceType      `json:"deviceType"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Validate checks the method/detail pairing: a CARD order never carries PIX
// detail and a PIX order never carries card detail.
func (o *Order) Validate() error {
	switch o.Method {
	case MethodCard:
		if o.Pix != nil {
			return fmt.Errorf("pedido com cartão não pode conter dados de PIX")
		}
		if o.Card == nil {
			return fmt.Errorf("pedido com cartão exige dados do cartão")
		}
	case MethodPix:
		if o.Card != nil {
			return fmt.Errorf("pedido PIX não pode conter dados de cartão")
		}
	default:
		return fmt.Errorf("método de pagamento inválido: %q", o.Method)
	}
	return nil
}
