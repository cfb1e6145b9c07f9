package domain

import "errors"

var (
	ErrReportNotFound = errors.New("report_not_found")
	ErrInvalidStatus  = errors.New("invalid_status")
)
