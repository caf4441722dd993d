// Package cost prices a single module run. The calculation is a pure
// function of runtime, payload sizes and machine class; the result is first
// expressed in dollars and then converted to drops at a configured rate.
package cost

import (
	"errors"
	"fmt"
)

// Defaults. The GiB-second price is the provider's published maximum; the
// fudge factor guards against under-charging while exact metering is coarse.
const (
	DefaultPricePerGiBSecond  = 0.000002905
	DefaultFudgeFactor        = 5.0
	DefaultDollarsToDropsRate = 2.5

	// DefaultMachineClass is the only machine class recognised so far,
	// priced at 1 GiB of memory.
	DefaultMachineClass = "default"
)

// ErrInvalidInput is returned for negative inputs, unknown machine classes
// or a misconfigured fudge factor.
var ErrInvalidInput = errors.New("invalid cost input")

// Calculator prices module runs. The zero value is not usable; construct via
// New or Default.
type Calculator struct {
	pricePerGiBSecond  float64
	fudgeFactor        float64
	dollarsToDropsRate float64
	machineClasses     map[string]float64
}

// New builds a calculator. machineClasses maps class name to GiB of memory;
// nil installs the default class. The fudge factor must be at least 1.
func New(pricePerGiBSecond, fudgeFactor, dollarsToDropsRate float64, machineClasses map[string]float64) (*Calculator, error) {
	if fudgeFactor < 1 {
		return nil, fmt.Errorf("%w: fudge factor %v must be >= 1", ErrInvalidInput, fudgeFactor)
	}
	if machineClasses == nil {
		machineClasses = map[string]float64{DefaultMachineClass: 1}
	}
	return &Calculator{
		pricePerGiBSecond:  pricePerGiBSecond,
		fudgeFactor:        fudgeFactor,
		dollarsToDropsRate: dollarsToDropsRate,
		machineClasses:     machineClasses,
	}, nil
}

// Default returns a calculator with all default pricing.
func Default() *Calculator {
	c, err := New(DefaultPricePerGiBSecond, DefaultFudgeFactor, DefaultDollarsToDropsRate, nil)
	if err != nil {
		panic(err)
	}
	return c
}

// DetermineCostDollars prices a run in dollars.
func (c *Calculator) DetermineCostDollars(runtimeMS float64, machineType string, requestSizeBytes, responseSizeBytes int64) (float64, error) {
	memoryGiB, ok := c.machineClasses[machineType]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported machine type %q", ErrInvalidInput, machineType)
	}
	if runtimeMS < 0 {
		return 0, fmt.Errorf("%w: runtimes must be positive", ErrInvalidInput)
	}
	if requestSizeBytes < 0 {
		return 0, fmt.Errorf("%w: the size of a request cannot be negative", ErrInvalidInput)
	}
	if responseSizeBytes < 0 {
		return 0, fmt.Errorf("%w: the size of a response cannot be negative", ErrInvalidInput)
	}

	consumedGiBSeconds := memoryGiB * runtimeMS *
		float64(requestSizeBytes) * float64(responseSizeBytes) / 1000

	return consumedGiBSeconds * c.pricePerGiBSecond * c.fudgeFactor, nil
}

// DollarsToDrops converts a dollar cost to drops at the configured rate.
func (c *Calculator) DollarsToDrops(dollars float64) (float64, error) {
	if dollars < 0 {
		return 0, fmt.Errorf("%w: you must provide a non-negative dollar value", ErrInvalidInput)
	}
	return dollars * c.dollarsToDropsRate, nil
}
