package contract

import "errors"

var (
	ErrValidation = errors.New("validation failed")
	ErrEnrichment = errors.New("enrichment failed")
	ErrSinkWrite  = errors.New("lineage sink write failed")
	ErrPipeline   = errors.New("pipeline execution failed")
)
