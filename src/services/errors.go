package services

import "errors"

var (
	ErrPositionNotFound        = errors.New("position not found")
	ErrOptionsPositionNotFound = errors.New("options position not found")
	ErrPositionNotOpen         = errors.New("can only roll open positions")
	ErrInsufficientShares      = errors.New("insufficient shares")
)
