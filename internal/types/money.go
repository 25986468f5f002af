// README: Common money value object used across modules.
package types

import "fmt"

// DefaultCurrency is the Moroccan dirham, displayed as DH.
const DefaultCurrency = "MAD"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func DH(amount int64) Money {
	return Money{Amount: amount, Currency: DefaultCurrency}
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}
