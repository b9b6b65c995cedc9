package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLuhnValid(t *testing.T) {
	tests := []struct {
		number    string
		wantValid bool
	}{
		{"4111111111111111", true},
		{"5500000000000004", true},
		{"4111111111111112", false},
		{"1", false},
		{"12", false},
	}
	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			assert.Equal(t, tt.wantValid, luhnValid(tt.number))
		})
	}
}

func TestIBANValidation(t *testing.T) {
	tests := []struct {
		iban      string
		wantValid bool
	}{
		{"DE89370400440532013000", true},
		{"GB29NWBK60161331926819", true},
		{"DE00370400440532013000", false},
		{"DE8937040044053201300", false},
		{"ZZ89370400440532013000", false},
	}
	for _, tt := range tests {
		t.Run(tt.iban, func(t *testing.T) {
			got := validateIBANLength(tt.iban) && validateIBANChecksum(tt.iban)
			assert.Equal(t, tt.wantValid, got)
		})
	}
}

func TestPassesValidation(t *testing.T) {
	tests := []struct {
		validation string
		value      string
		want       bool
	}{
		{validateLuhn, "4111 1111 1111 1111", true},
		{validateLuhn, "4111-1111-1111-1112", false},
		{validateIBAN, "DE89 3704 0044 0532 0130 00", true},
		{validateIP, "192.168.1.10", true},
		{validateIP, "256.1.1.1", false},
		{validateIP, "fe80::1", true},
		{"", "anything", true},
	}
	for _, tt := range tests {
		t.Run(tt.validation+"/"+tt.value, func(t *testing.T) {
			p := PIIPattern{Validation: tt.validation}
			assert.Equal(t, tt.want, p.passesValidation(tt.value))
		})
	}
}
