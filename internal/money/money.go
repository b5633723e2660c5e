/**
 * Copyright 2025-present UBT Platform, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every monetary value carries.
// All amounts are persisted as integer base units scaled by 10^Scale.
const Scale = 8

// Round applies the single rounding step of a computation chain:
// round-half-up at Scale fractional digits. It must be called once, at the
// end of a chain, never per intermediate step.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// ToUnits converts an amount to integer base units after rounding at Scale.
func ToUnits(d decimal.Decimal) (int64, error) {
	units := Round(d).Shift(Scale)
	bi := units.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("amount %s out of range for base units", d.String())
	}
	return bi.Int64(), nil
}

// FromUnits converts integer base units back to a decimal amount.
func FromUnits(units int64) decimal.Decimal {
	return decimal.New(units, -Scale)
}

// Parse parses a decimal string, rejecting values with more than Scale
// fractional digits. Monetary values cross process boundaries as decimal
// strings, never as floats.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Exponent() < -Scale {
		return decimal.Zero, fmt.Errorf("amount %q exceeds %d fractional digits", s, Scale)
	}
	return d, nil
}

// CheckPositive reports an error unless the amount is strictly positive and
// representable at Scale.
func CheckPositive(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", d.String())
	}
	if d.Exponent() < -Scale {
		return fmt.Errorf("amount %s exceeds %d fractional digits", d.String(), Scale)
	}
	return nil
}
