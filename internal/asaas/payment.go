package asaas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"checkout/api/internal/logger"
	"checkout/api/internal/order"

	"github.com/shopspring/decimal"
)

// ErrQRCodeUnavailable is returned by CreatePixCharge when the payment was
// created but its QR code could not be fetched. The returned PixCharge then
// carries the charge id with an empty Pix snapshot.
var ErrQRCodeUnavailable = errors.New("pix qr code unavailable")

// PixChargeParams holds the data needed to register a PIX charge.
type PixChargeParams struct {
	OrderID     int64
	Customer    order.Customer
	Value       decimal.Decimal
	Description string
}

// PixCharge is a registered charge with its QR code snapshot.
type PixCharge struct {
	ChargeID   string
	CustomerID string
	Status     string
	Pix        order.PixDetails
}

// Charge is the provider's current view of a charge.
type Charge struct {
	ID                string
	Status            string
	Value             decimal.Decimal
	ExternalReference string
}

// CreateCustomer registers the buyer and returns the provider customer id.
func (c *Client) CreateCustomer(ctx context.Context, cust order.Customer) (string, error) {
	cpf := SanitizeDocument(cust.CPF)
	if err := ValidateCPF(cpf); err != nil {
		return "", err
	}

	body := map[string]interface{}{
		"name":    cust.Name,
		"email":   cust.Email,
		"cpfCnpj": cpf,
	}
	if cust.Phone != "" {
		if phone, err := ParsePhone(cust.Phone); err == nil {
			body["mobilePhone"] = phone.Mobile()
		} else {
			logger.Warnf("[ASAAS] Telefone ignorado para %s: %v", cust.Email, err)
		}
	}
	if a := cust.Address; a != nil {
		body["address"] = a.Street
		body["addressNumber"] = a.Number
		body["complement"] = a.Complement
		body["province"] = a.Neighborhood
		body["postalCode"] = SanitizeDocument(a.PostalCode)
	}

	result, err := c.doRequest(ctx, http.MethodPost, "/customers", body)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	id, _ := result["id"].(string)
	if id == "" {
		return "", fmt.Errorf("no customer id in response")
	}
	return id, nil
}

// CreatePixCharge registers the customer, creates a PIX payment and fetches
// its QR code. Once the payment exists a non-nil PixCharge is always
// returned, even when the QR code fetch fails (ErrQRCodeUnavailable).
func (c *Client) CreatePixCharge(ctx context.Context, params PixChargeParams) (*PixCharge, error) {
	if !params.Value.IsPositive() {
		return nil, fmt.Errorf("valor da cobrança deve ser maior que zero")
	}

	customerID, err := c.CreateCustomer(ctx, params.Customer)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"customer":          customerID,
		"billingType":       BillingTypePix,
		"value":             json.Number(params.Value.StringFixed(2)),
		"dueDate":           time.Now().In(brazilTime).Format("2006-01-02"),
		"description":       params.Description,
		"externalReference": fmt.Sprintf("%d", params.OrderID),
	}
	result, err := c.doRequest(ctx, http.MethodPost, "/payments", body)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	chargeID, _ := result["id"].(string)
	status, _ := result["status"].(string)
	if chargeID == "" {
		return nil, fmt.Errorf("no payment id in response")
	}

	charge := &PixCharge{ChargeID: chargeID, CustomerID: customerID, Status: status}
	pix, err := c.PixQRCode(ctx, chargeID)
	if err != nil {
		logger.Warnf("[ASAAS] Cobrança PIX %s criada sem QR Code: %v", chargeID, err)
		return charge, fmt.Errorf("%w: %w", ErrQRCodeUnavailable, err)
	}
	charge.Pix = *pix

	logger.Infof("[ASAAS] Cobrança PIX %s criada para pedido %d (valor %s)", chargeID, params.OrderID, params.Value.StringFixed(2))
	return charge, nil
}

// PixQRCode fetches the QR payload and image of a PIX charge.
func (c *Client) PixQRCode(ctx context.Context, chargeID string) (*order.PixDetails, error) {
	result, err := c.doRequest(ctx, http.MethodGet, "/payments/"+url.PathEscape(chargeID)+"/pixQrCode", nil)
	if err != nil {
		return nil, fmt.Errorf("get pix qr code: %w", err)
	}
	payload, _ := result["payload"].(string)
	image, _ := result["encodedImage"].(string)
	if payload == "" {
		return nil, fmt.Errorf("no pix payload in response")
	}

	expiry := c.PixExpiry
	if expiry <= 0 {
		expiry = DefaultPixExpiry
	}
	expiresAt := time.Now().Add(expiry)
	if raw, _ := result["expirationDate"].(string); raw != "" {
		if t, ok := parseProviderTime(raw); ok {
			expiresAt = t
		}
	}

	return &order.PixDetails{
		QRCode:         payload,
		QRCodeImage:    normalizeQRImage(image),
		ExpirationDate: expiresAt.UTC(),
	}, nil
}

// GetCharge retrieves the current state of a charge.
func (c *Client) GetCharge(ctx context.Context, chargeID string) (*Charge, error) {
	result, err := c.doRequest(ctx, http.MethodGet, "/payments/"+url.PathEscape(chargeID), nil)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	ch := &Charge{}
	ch.ID, _ = result["id"].(string)
	ch.Status, _ = result["status"].(string)
	ch.ExternalReference, _ = result["externalReference"].(string)
	if v, ok := result["value"].(json.Number); ok {
		ch.Value, _ = decimal.NewFromString(v.String())
	}
	return ch, nil
}
