package asaas

import (
	"fmt"
	"regexp"
	"strconv"
)

var nonDigit = regexp.MustCompile(`[^\d]`)

// PhoneData representa telefone estruturado para envio ao gateway de pagamento
type PhoneData struct {
	CountryCode string // "55" para Brasil
	AreaCode    string // DDD (2 dígitos)
	Number      string // Número (8 ou 9 dígitos)
}

// Mobile returns the national number (DDD + number) Asaas expects in mobilePhone.
func (p PhoneData) Mobile() string {
	return p.AreaCode + p.Number
}

// sanitizePhone remove caracteres não numéricos de um telefone
func sanitizePhone(phone string) string {
	return nonDigit.ReplaceAllString(phone, "")
}

// SanitizeDocument remove todos os caracteres não numéricos de um documento (CPF/CNPJ).
func SanitizeDocument(doc string) string {
	return nonDigit.ReplaceAllString(doc, "")
}

// ValidatePhone valida um telefone brasileiro no formato livre digitado no checkout.
// Aceita com ou sem o código do país (55).
func ValidatePhone(phone string) error {
	_, err := ParsePhone(phone)
	return err
}

// ParsePhone converte telefone digitado para estrutura sanitizada.
func ParsePhone(phone string) (PhoneData, error) {
	digits := sanitizePhone(phone)
	if digits == "" {
		return PhoneData{}, fmt.Errorf("telefone é obrigatório")
	}
	if (len(digits) == 12 || len(digits) == 13) && digits[:2] == "55" {
		digits = digits[2:]
	}
	if len(digits) < 10 {
		return PhoneData{}, fmt.Errorf("telefone muito curto: informe DDD e número")
	}

	ac, num := digits[:2], digits[2:]

	// Valida se DDD está na faixa válida (11-99)
	ddd, err := strconv.Atoi(ac)
	if err != nil || ddd < 11 || ddd > 99 {
		return PhoneData{}, fmt.Errorf("DDD inválido: deve estar entre 11 e 99")
	}

	// Número: deve ter 8 ou 9 dígitos
	if len(num) != 8 && len(num) != 9 {
		return PhoneData{}, fmt.Errorf("número deve ter 8 ou 9 dígitos (recebido %d)", len(num))
	}

	return PhoneData{CountryCode: "55", AreaCode: ac, Number: num}, nil
}
