// Package protocol defines the line format spoken between chat clients and the
// server.
//
// Every inbound message is a single text line of the form
//
//	<directive> <payload>
//
// where the directive is the token before the first space.  Messages fanned out
// to recipients are reformatted as "<sender>: <payload>".
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Directive identifies the operation requested by an inbound line.
type Directive string

const (
	Broadcast  Directive = "!broadcast"
	Private    Directive = "!private"
	UserList   Directive = "!userlist"
	AddUser    Directive = "!adduser"
	RemoveUser Directive = "!removeuser"
	Exit       Directive = "!exit"
	Unknown    Directive = "!unknown"
)

// directivePrefix marks a token as a directive on the client side.
const directivePrefix = "!"

// SystemName is the author shown on notices generated by the server itself.
// It contains characters no handshake would plausibly pick, but the server does
// not reserve it.
const SystemName = "**SERVER**"

// ErrInvalidDirective is returned by Compose for directives that cannot be put
// on the wire.
var ErrInvalidDirective = errors.New("protocol: directive must start with " + directivePrefix)

// Known reports whether d is one of the directives defined above.
func (d Directive) Known() bool {
	switch d {
	case Broadcast, Private, UserList, AddUser, RemoveUser, Exit, Unknown:
		return true
	}
	return false
}

// Reserved reports whether d is defined but has no routing behaviour yet.
func (d Directive) Reserved() bool {
	switch d {
	case AddUser, RemoveUser, Unknown:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse splits line at its first space.  Without a space the whole line is the
// directive and the payload is empty; a leading space yields an empty
// directive.  No trimming or case folding is applied.
func Parse(line string) (Directive, string) {
	before, after, found := strings.Cut(line, " ")
	if !found {
		return Directive(line), ""
	}
	return Directive(before), after
}

// SplitTarget splits a private payload "<name> <text>" into its recipient and
// message.  ok is false when either part is missing.
func SplitTarget(payload string) (target, text string, ok bool) {
	target, text, found := strings.Cut(payload, " ")
	if !found || target == "" {
		return "", "", false
	}
	return target, text, true
}

// TrimLine strips trailing line terminators.  A message is one line; its
// terminator is framing, not content.
func TrimLine(raw string) string {
	return strings.TrimRight(raw, "\r\n")
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

// Compose prefixes msg with directive d, as clients do before sending.
func Compose(d Directive, msg string) (string, error) {
	if d == "" || !strings.HasPrefix(string(d), directivePrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirective, d)
	}
	return string(d) + " " + msg, nil
}

// FormatChat renders a broadcast line as recipients see it.
func FormatChat(sender, payload string) string {
	return sender + ": " + payload
}

// FormatPrivate renders a private line as its single recipient sees it.
func FormatPrivate(sender, payload string) string {
	return sender + " (private): " + payload
}

// FormatSystem renders a server notice.
func FormatSystem(text string) string {
	return FormatChat(SystemName, text)
}
