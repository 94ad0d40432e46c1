package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// JSON is a custom type for JSON fields
type JSON map[string]interface{}

// Implement the driver.Valuer interface for JSON type
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Implement the sql.Scanner interface for JSON type
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	case nil:
		*j = nil
		return nil
	default:
		return errors.New("type assertion to []byte failed")
	}

	if len(bytes) == 0 {
		*j = nil
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// BigInt stores an arbitrary-precision integer as a decimal string column.
// Token amounts and the reward accumulator exceed int64 range, so every
// amount column in this package uses this type.
type BigInt struct {
	big.Int
}

// NewBigInt copies i into a fresh BigInt.
func NewBigInt(i *big.Int) *BigInt {
	b := new(BigInt)
	if i != nil {
		b.Int.Set(i)
	}
	return b
}

// NewBigIntFromInt64 returns a BigInt holding i.
func NewBigIntFromInt64(i int64) *BigInt {
	b := new(BigInt)
	b.Int.SetInt64(i)
	return b
}

// NewBigIntFromString parses a base-10 amount string.
func NewBigIntFromString(s string) (*BigInt, error) {
	b := new(BigInt)
	if _, ok := b.Int.SetString(s, 10); !ok {
		return nil, fmt.Errorf("invalid integer string %q", s)
	}
	return b, nil
}

// Big returns a defensive copy of the underlying big.Int. A nil receiver
// reads as zero so optional columns can be used without nil checks.
func (b *BigInt) Big() *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(&b.Int)
}

// Implement the driver.Valuer interface for BigInt type
func (b *BigInt) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return b.Int.String(), nil
}

// Implement the sql.Scanner interface for BigInt type
func (b *BigInt) Scan(value interface{}) error {
	if value == nil {
		b.Int.SetInt64(0)
		return nil
	}

	var s string
	switch v := value.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	case int64:
		b.Int.SetInt64(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into BigInt", value)
	}

	if s == "" {
		b.Int.SetInt64(0)
		return nil
	}
	if _, ok := b.Int.SetString(s, 10); !ok {
		return fmt.Errorf("invalid integer string %q", s)
	}
	return nil
}

// GormDataType tells the migrator to use a text column.
func (BigInt) GormDataType() string {
	return "text"
}

func (b *BigInt) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte(`"0"`), nil
	}
	return json.Marshal(b.Int.String())
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return b.Scan(s)
}
