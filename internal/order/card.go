package order

import (
	"fmt"
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`[^\d]`)

// OnlyDigits strips everything but digits (used for card numbers, CPF and phones).
func OnlyDigits(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// DetectCardBrand infers the brand from the card number prefix.
func DetectCardBrand(number string) string {
	n := OnlyDigits(number)
	switch {
	case n == "":
		return "Unknown"
	case strings.HasPrefix(n, "4011") || strings.HasPrefix(n, "4312") || strings.HasPrefix(n, "4389") ||
		strings.HasPrefix(n, "5041") || strings.HasPrefix(n, "5067") || strings.HasPrefix(n, "509") ||
		strings.HasPrefix(n, "6362") || strings.HasPrefix(n, "6363") || strings.HasPrefix(n, "650"):
		return "Elo"
	case strings.HasPrefix(n, "606282") || strings.HasPrefix(n, "3841"):
		return "Hipercard"
	case strings.HasPrefix(n, "34") || strings.HasPrefix(n, "37"):
		return "Amex"
	case strings.HasPrefix(n, "4"):
		return "Visa"
	case len(n) >= 2 && n[0] == '5' && n[1] >= '1' && n[1] <= '5':
		return "Mastercard"
	case len(n) >= 4 && n[:4] >= "2221" && n[:4] <= "2720":
		return "Mastercard"
	case strings.HasPrefix(n, "36") || strings.HasPrefix(n, "38") || strings.HasPrefix(n, "300") || strings.HasPrefix(n, "305"):
		return "Diners"
	default:
		return "Unknown"
	}
}

// MaskCard turns raw card input into the snapshot kept on the order. The full
// number and the CVV are never retained.
func MaskCard(number, expiryMonth, expiryYear string) (*CardDetails, error) {
	n := OnlyDigits(number)
	if len(n) < 12 || len(n) > 19 {
		return nil, fmt.Errorf("número do cartão inválido")
	}
	card := &CardDetails{
		Brand: DetectCardBrand(n),
		Last4: n[len(n)-4:],
	}
	month := OnlyDigits(expiryMonth)
	year := OnlyDigits(expiryYear)
	if month != "" && year != "" {
		if len(month) == 1 {
			month = "0" + month
		}
		if len(year) == 4 {
			year = year[2:]
		}
		card.Expiry = month + "/" + year
	}
	return card, nil
}
