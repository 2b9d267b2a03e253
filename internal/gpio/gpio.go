// Package gpio reads a local power-sense input so the monitor can observe the
// outlet directly when it runs next to it. The real implementation uses the
// Linux GPIO character device; the fake allows testing without hardware.
package gpio

// Reader reads the power-sense input.
type Reader interface {
	// Read returns true when the sensed outlet has power.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the gpiochip the probe line is requested from.
const DefaultChip = "gpiochip0"
