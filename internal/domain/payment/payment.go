package payment

import (
	"errors"
	"strings"
)

var (
	ErrInvalidStatus = errors.New("payment: invalid status")
	ErrInvalidMethod = errors.New("payment: invalid method")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

type Method string

const (
	MethodCOD        Method = "cod"
	MethodCard       Method = "card"
	MethodUPI        Method = "upi"
	MethodNetBanking Method = "netbanking"
	MethodWallet     Method = "wallet"
)

func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", ErrInvalidMethod
	}
	return m, nil
}

func (m Method) Valid() bool {
	switch m {
	case MethodCOD, MethodCard, MethodUPI, MethodNetBanking, MethodWallet:
		return true
	}
	return false
}

// IsCOD reports whether the order is paid in cash when it is delivered.
func (m Method) IsCOD() bool { return m == MethodCOD }
