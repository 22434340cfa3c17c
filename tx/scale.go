package tx

// ScaleFactor converts a normalized baseband sample into frequency deviation
// (Hz). span is the generator's peak amplitude: a sample of +span produces
// +deviation. Any deviation is accepted, including zero and negative values.
func ScaleFactor(deviation, span float64) float64 {
	return deviation / span
}
