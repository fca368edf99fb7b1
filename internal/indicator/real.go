//go:build linux

package indicator

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealLED drives an LED on a Linux GPIO character device line.
type RealLED struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealLED requests offset on the named chip (e.g. "gpiochip0") as an
// output, initially off.
func NewRealLED(chipName string, offset int, activeLow bool) (*RealLED, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("gatewayctl"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := chip.RequestLine(offset, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request led line %d: %w", offset, err)
	}

	return &RealLED{chip: chip, line: line}, nil
}

// Set drives the line to the logical state on.
func (r *RealLED) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set led line: %w", err)
	}
	return nil
}

// Close turns the LED off and returns the line to an input with pull-down,
// matching the Pi boot default.
func (r *RealLED) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear led line: %w", err))
		}
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure led line: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close led line: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}
