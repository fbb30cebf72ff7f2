package server

import "github.com/klangbox/card-agent/buildinfo"

// mDNS service discovery constants.
var (
	MDNSServiceType = "_klangbox-agent._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// WebSocket message types for client-server communication.
const (
	WSMessageTypeCardEvent     = "cardEvent"
	WSMessageTypeReaderStatus  = "readerStatus"
	WSMessageTypeWriteRequest  = "writeRequest"
	WSMessageTypeWriteResponse = "writeResponse"
	WSMessageTypeError         = "error"
)

// CORS configuration.
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)
