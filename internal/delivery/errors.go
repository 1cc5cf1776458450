package delivery

import "errors"

var (
	errSendBufferFull = errors.New("recipient send buffer full")
	errRouterClosed   = errors.New("router closed")
)
