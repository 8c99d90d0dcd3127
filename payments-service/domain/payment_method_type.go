package domain

import (
	"fmt"
	"strings"
)

type PaymentMethodType string

const (
	PaymentMethodTypeCreditCard PaymentMethodType = "credit_card"
	PaymentMethodTypeDebitCard  PaymentMethodType = "debit_card"
	PaymentMethodTypeWallet     PaymentMethodType = "wallet"
)

var allPaymentMethodTypes = map[string]PaymentMethodType{
	PaymentMethodTypeCreditCard.String(): PaymentMethodTypeCreditCard,
	PaymentMethodTypeDebitCard.String():  PaymentMethodTypeDebitCard,
	PaymentMethodTypeWallet.String():     PaymentMethodTypeWallet,
	// accepted for clients still sending the older name
	"debit": PaymentMethodTypeDebitCard,
}

// NewPaymentMethodType parses a payment method, ignoring case
func NewPaymentMethodType(value string) (*PaymentMethodType, error) {
	if method, ok := allPaymentMethodTypes[strings.ToLower(strings.TrimSpace(value))]; ok {
		return &method, nil
	}
	return nil, fmt.Errorf("unknown payment method type: %s", value)
}

func (pt PaymentMethodType) String() string {
	return string(pt)
}
