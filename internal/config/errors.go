package config

import "errors"

// Validation errors returned by AppConfig.Validate
var (
	ErrNoInput            = errors.New("no input file specified")
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be between 1 and 3")
	ErrInvalidTimeout     = errors.New("invalid timeout: must be between 5 and 30 seconds")
	ErrInvalidCeiling     = errors.New("invalid run ceiling: must be non-negative")
	ErrNegativeDuration   = errors.New("invalid duration: must be non-negative")
	ErrInvalidRetries     = errors.New("invalid max retries: must be non-negative")
	ErrNoOutputDir        = errors.New("results and logs directories are required")
)
