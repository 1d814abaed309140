package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Unit is a native-currency denomination.
type Unit string

const (
	UnitWei    Unit = "wei"
	UnitKwei   Unit = "kwei"
	UnitMwei   Unit = "mwei"
	UnitGwei   Unit = "gwei"
	UnitSzabo  Unit = "szabo"
	UnitFinney Unit = "finney"
	UnitEther  Unit = "ether"
)

var unitDecimals = map[Unit]int32{
	UnitWei:    0,
	UnitKwei:   3,
	UnitMwei:   6,
	UnitGwei:   9,
	UnitSzabo:  12,
	UnitFinney: 15,
	UnitEther:  18,
}

var (
	ErrInvalidUnit   = errors.New("invalid unit")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Decimals returns how many decimal places the unit sits above wei.
func (u Unit) Decimals() (int32, error) {
	d, ok := unitDecimals[u]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, string(u))
	}
	return d, nil
}

// ToWei converts value expressed in unit into an integer wei amount.
// Fractions of a wei are rejected rather than rounded.
func ToWei(value decimal.Decimal, unit Unit) (*big.Int, error) {
	d, err := unit.Decimals()
	if err != nil {
		return nil, err
	}
	if value.IsNegative() {
		return nil, fmt.Errorf("%w: %s %s is negative", ErrInvalidAmount, value, unit)
	}
	shifted := value.Shift(d)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %s %s is not a whole number of wei", ErrInvalidAmount, value, unit)
	}
	return shifted.BigInt(), nil
}

// Amount is a native-currency quantity with its denomination.
type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

// Ether builds an Amount from a decimal ether string.
func Ether(value string) Amount {
	return Amount{Value: decimal.RequireFromString(value), Unit: UnitEther}
}

// Wei converts the amount to integer wei.
func (a Amount) Wei() (*big.Int, error) {
	return ToWei(a.Value, a.Unit)
}

func (a Amount) String() string {
	return a.Value.String() + " " + string(a.Unit)
}

// UnmarshalYAML accepts either {value, unit} or a bare decimal, which is
// read as ether.
func (a *Amount) UnmarshalYAML(unmarshal func(any) error) error {
	var legacy string
	if err := unmarshal(&legacy); err == nil {
		v, err := decimal.NewFromString(legacy)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidAmount, legacy)
		}
		*a = Amount{Value: v, Unit: UnitEther}
		return nil
	}

	var raw struct {
		Value string `yaml:"value"`
		Unit  Unit   `yaml:"unit"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := decimal.NewFromString(raw.Value)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, raw.Value)
	}
	if raw.Unit == "" {
		raw.Unit = UnitEther
	}
	if _, err := raw.Unit.Decimals(); err != nil {
		return err
	}
	*a = Amount{Value: v, Unit: raw.Unit}
	return nil
}

// Threshold is a low-balance level with an optional critical level below it.
// Both values share Unit.
type Threshold struct {
	Value         decimal.Decimal
	Unit          Unit
	CriticalValue *decimal.Decimal
}

// LowWei returns the low threshold in wei.
func (t Threshold) LowWei() (*big.Int, error) {
	return ToWei(t.Value, t.Unit)
}

// CriticalWei returns the critical threshold in wei, or nil when unset.
func (t Threshold) CriticalWei() (*big.Int, error) {
	if t.CriticalValue == nil {
		return nil, nil
	}
	return ToWei(*t.CriticalValue, t.Unit)
}

// UnmarshalYAML accepts {value, unit, criticalValue} or a bare decimal in ether.
func (t *Threshold) UnmarshalYAML(unmarshal func(any) error) error {
	var legacy string
	if err := unmarshal(&legacy); err == nil {
		v, err := decimal.NewFromString(legacy)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidAmount, legacy)
		}
		*t = Threshold{Value: v, Unit: UnitEther}
		return nil
	}

	var raw struct {
		Value         string `yaml:"value"`
		Unit          Unit   `yaml:"unit"`
		CriticalValue string `yaml:"criticalValue"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := decimal.NewFromString(raw.Value)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, raw.Value)
	}
	if raw.Unit == "" {
		raw.Unit = UnitEther
	}
	if _, err := raw.Unit.Decimals(); err != nil {
		return err
	}
	out := Threshold{Value: v, Unit: raw.Unit}
	if raw.CriticalValue != "" {
		c, err := decimal.NewFromString(raw.CriticalValue)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidAmount, raw.CriticalValue)
		}
		out.CriticalValue = &c
	}
	*t = out
	return nil
}
