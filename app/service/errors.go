package service

import "errors"

var (
	ErrDuplicateJobID = errors.New("email history already exists for job")
	ErrSendInProgress = errors.New("email send already in progress")
)
