package entities

import "errors"

var ErrPriceUnavailable = errors.New("no verified price available")
