package ledger

import "errors"

var (
	ErrInvalidPhase        = errors.New("betting is not open")
	ErrLimitExceeded       = errors.New("bet limit exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateTempID     = errors.New("temp id already in use")
	ErrUnknownRound        = errors.New("unknown round")
	ErrNoBetToCancel       = errors.New("no bet to cancel")
)
