package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a bar period in MetaTrader notation: M1, M5, M15, M30, H1,
// H4, D1, W1, MN1.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
	W1  Timeframe = "W1"
	MN1 Timeframe = "MN1"
)

func (tf Timeframe) Duration() (time.Duration, error) {
	switch tf {
	case M1:
		return time.Minute, nil
	case M5:
		return 5 * time.Minute, nil
	case M15:
		return 15 * time.Minute, nil
	case M30:
		return 30 * time.Minute, nil
	case H1:
		return time.Hour, nil
	case H4:
		return 4 * time.Hour, nil
	case D1:
		return 24 * time.Hour, nil
	case W1:
		return 7 * 24 * time.Hour, nil
	case MN1:
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe: %s", tf)
	}
}

// ParseTimeframe normalizes a timeframe string and checks it is supported.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if _, err := tf.Duration(); err != nil {
		return "", err
	}
	return tf, nil
}
