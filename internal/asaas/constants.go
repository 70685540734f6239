package asaas

import (
	"fmt"
	"strings"
	"time"
)

const (
	// BillingTypePix é o único tipo de cobrança registrado no provedor
	BillingTypePix = "PIX"

	// DefaultPixExpiry é a validade do QR code quando o provedor não informa (30 minutos)
	DefaultPixExpiry = 30 * time.Minute

	// CPFLength é o tamanho do CPF sanitizado
	CPFLength = 11

	// pngDataURIPrefix normaliza a imagem do QR code para uso direto em <img>
	pngDataURIPrefix = "data:image/png;base64,"
)

// brazilTime is the offset Asaas reports dates in (no DST since 2019).
var brazilTime = time.FixedZone("BRT", -3*60*60)

// ValidateBillingType verifica se o tipo de cobrança é aceito.
func ValidateBillingType(billingType string) error {
	if billingType == "" {
		return fmt.Errorf("tipo de cobrança não pode estar vazio")
	}
	if !strings.EqualFold(billingType, BillingTypePix) {
		return fmt.Errorf("tipo de cobrança inválido: apenas '%s' é permitido, recebido '%s'", BillingTypePix, billingType)
	}
	return nil
}

// ValidateCPF verifica se o documento sanitizado tem 11 dígitos.
func ValidateCPF(doc string) error {
	clean := SanitizeDocument(doc)
	if len(clean) != CPFLength {
		return fmt.Errorf("CPF inválido: deve conter %d dígitos (recebido %d)", CPFLength, len(clean))
	}
	return nil
}

// normalizeQRImage prefixes raw base64 PNG data with a data URI scheme.
func normalizeQRImage(encoded string) string {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" || strings.HasPrefix(encoded, "data:") {
		return encoded
	}
	return pngDataURIPrefix + encoded
}

// parseProviderTime accepts RFC3339 and the provider's "2006-01-02 15:04:05".
func parseProviderTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, brazilTime); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
