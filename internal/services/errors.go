package services

import (
	"errors"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrExists         = errors.New("already exists")
	ErrInvalidName    = errors.New("invalid file name")
	ErrInvalidID      = errors.New("invalid id")
	ErrMemberExists   = errors.New("member already exists in this queue")
	ErrMemberNotFound = errors.New("member not found in this queue")
	ErrInvalidBackup  = errors.New("invalid backup path")
	ErrInvalidValue   = errors.New("value must be a single line without brackets")
)

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
