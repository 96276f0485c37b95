package app

import (
	"fmt"

	"finance-etl/internal/identity"
)

// HashOptions name an instrument the way the transformers identify it.
type HashOptions struct {
	Source         string
	DataType       string
	Discriminators []string
}

// Hash returns the instrument id the transformers would assign.
func (a *App) Hash(opts HashOptions) (string, error) {
	if opts.Source == "" || opts.DataType == "" {
		return "", fmt.Errorf("source and data type are required")
	}
	if len(opts.Discriminators) == 0 {
		return "", fmt.Errorf("at least one discriminator is required")
	}
	return identity.Hash(opts.Source, opts.DataType, opts.Discriminators...), nil
}
