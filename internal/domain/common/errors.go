// Package common holds the error sentinels shared by the spin domain and its
// transports.
package common

import "errors"

var (
	ErrNotFound   = errors.New("requested item not found")
	ErrBadRequest = errors.New("bad request")
)
