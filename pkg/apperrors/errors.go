package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrCapacityUnparseable = errors.New("peak power is not parseable")
	ErrNoCSVForSite        = errors.New("no csv file found for site")
)
