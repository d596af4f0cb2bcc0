// Package fdenv implements the inherited-socket encoding described in
// spec.md §4.5: across exec, file descriptors survive but their
// identity has to travel through the new image's environment. This is
// the generalized, from-scratch version of the teacher's
// graceful_restarts/SocketHandoff use of net.FileListener to
// reconstruct a listener from a raw inherited fd.
package fdenv

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// EnvVar is the fixed environment variable name the grammar in spec
// §4.5 and §6 names "NGINX" (or equivalent fixed prefix).
const EnvVar = "NGINX"

// Entry is one decoded inherited descriptor: its raw fd, the
// reconstructed net.Listener (nil if Ignore is set), its printable
// address, and whether its family was unsupported.
type Entry struct {
	FD       int
	Listener net.Listener
	Text     string
	Ignore   bool
}

// Encode renders fds as the "(digits (':' | ';'))+" value the grammar
// in spec §4.5 defines, preserving listener order. It is the inverse
// of Decode for any set of descriptors that all decode successfully.
func Encode(fds []int) string {
	var b strings.Builder
	for _, fd := range fds {
		b.WriteString(strconv.Itoa(fd))
		b.WriteByte(';')
	}
	return b.String()
}

// Decode parses an EnvVar value into a list of Entry, in the order the
// descriptors appeared. A malformed token aborts parsing the
// remainder of the variable — entries already parsed are kept (spec
// §4.5 "Decoding"). onWarn, if non-nil, is called once per malformed
// token and once per unsupported-family descriptor.
func Decode(value string, onWarn func(msg string)) []Entry {
	warn := onWarn
	if warn == nil {
		warn = func(string) {}
	}

	tokens := splitTokens(value)
	entries := make([]Entry, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		fd, err := strconv.Atoi(tok)
		if err != nil || fd < 0 {
			warn(fmt.Sprintf("fdenv: malformed descriptor token %q, stopping decode of remainder", tok))
			break
		}
		entries = append(entries, decodeOne(fd, warn))
	}
	return entries
}

// splitTokens breaks value on ':' and ';' per the grammar
// "value := (digits (":" | ";"))+", keeping empty trailing pieces out.
func splitTokens(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ':' || r == ';'
	})
}

// decodeOne calls getsockname (via net.FileListener, which dups the fd
// and introspects it) to populate Text, and marks Ignore if the family
// is not AF_INET — the only family this spec requires (§4.5
// "Decoding").
func decodeOne(fd int, warn func(string)) Entry {
	f := os.NewFile(uintptr(fd), "inherited-listener")
	if f == nil {
		warn(fmt.Sprintf("fdenv: descriptor %d could not be opened", fd))
		return Entry{FD: fd, Ignore: true}
	}

	ln, err := net.FileListener(f)
	_ = f.Close() // net.FileListener dups the fd into ln; release our copy.
	if err != nil {
		warn(fmt.Sprintf("fdenv: getsockname on descriptor %d failed: %v", fd, err))
		return Entry{FD: fd, Ignore: true}
	}

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok || tcpAddr.IP.To4() == nil {
		warn(fmt.Sprintf("fdenv: descriptor %d is not AF_INET, marking ignore", fd))
		_ = ln.Close()
		return Entry{FD: fd, Ignore: true}
	}

	return Entry{FD: fd, Listener: ln, Text: tcpAddr.String()}
}
