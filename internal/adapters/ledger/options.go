package ledger

import (
	"os"

	"github.com/okian/facetally/pkg/logger"
)

// Option applies a configuration option to the CSVLedger.
type Option func(*CSVLedger)

// WithLogger sets the ledger logger.
func WithLogger(l logger.Logger) Option {
	return func(c *CSVLedger) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFileMode sets the permission bits of newly created day files.
func WithFileMode(mode os.FileMode) Option {
	return func(c *CSVLedger) {
		if mode != 0 {
			c.fileMode = mode
		}
	}
}
