package waitlist

import "errors"

var (
	ErrWaitlistEmpty    = errors.New("waitlist is empty")
	ErrNoTableAvailable = errors.New("no table available")
	ErrClientNotFound   = errors.New("client not found")
)
