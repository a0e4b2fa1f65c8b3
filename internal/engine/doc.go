// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package engine implements the transfer engine contract: an event-driven
// HTTP/1.1 client core that multiplexes any number of plain-TCP transfers
// over nonblocking sockets it never polls itself. The engine announces
// which descriptors it wants monitored and when it wants a clock wakeup
// through the bound callbacks; the multi driver feeds readiness back in.
//
// Scope is http:// over IPv4/IPv6: request write, incremental response
// parse, Content-Length, chunked and read-until-close bodies, gzip and
// deflate decoding, and redirect chasing. TLS, HTTP/2, connection reuse,
// proxies and cookies are out of scope.
package engine
