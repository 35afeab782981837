package id

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// UUID issues random (v4) identifiers.
type UUID struct{}

func (UUID) NewID() string {
	return uuid.NewString()
}

const suffixAlphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// OrderNumbers issues human-facing order numbers: a prefix, the UTC timestamp
// down to the millisecond, and a random suffix.
type OrderNumbers struct {
	Prefix string
	now    func() time.Time
}

func NewOrderNumbers(prefix string) *OrderNumbers {
	if prefix == "" {
		prefix = "ORD"
	}
	return &OrderNumbers{Prefix: prefix, now: time.Now}
}

func (g *OrderNumbers) NewNumber() string {
	ts := g.now().UTC()
	return fmt.Sprintf("%s%s%03d%s", g.Prefix, ts.Format("20060102150405"), ts.Nanosecond()/int(time.Millisecond), randomSuffix(4))
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(suffixAlphabet)))
	for i := range buf {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		buf[i] = suffixAlphabet[v.Int64()]
	}
	return string(buf)
}
