// Package control is the loopback TCP protocol between the resident overlay
// host and its command-line controller. Binding the first port of the range
// doubles as the single-instance lock.
//
// A request is one line: a command word followed by space-separated
// arguments. The response starts with "OK\n" or "ERROR\n" followed by an
// optional body; the server closes the connection after responding.
package control

import (
	"errors"
	"fmt"
	"strings"
)

const (
	residentHost = "127.0.0.1"
	pingRequest  = "PING\n"
	pongResponse = "PONG\n"
	okStatus     = "OK\n"
	errorStatus  = "ERROR\n"
)

// Commands understood by the resident
const (
	CmdPing   = "PING"
	CmdShow   = "SHOW"
	CmdHide   = "HIDE"
	CmdCatch  = "CATCH"
	CmdUpdate = "UPDATE"
	CmdInput  = "INPUT"
	CmdAdd    = "ADD"
	CmdList   = "LIST"
	CmdCount  = "COUNT"
	CmdStatus = "STATUS"
	CmdRemove = "REMOVE"
	CmdMove   = "MOVE"
	CmdAlpha  = "ALPHA"
	CmdURL    = "URL"
	CmdQuit   = "QUIT"
)

// ErrNoResident is returned by the client when no resident answers.
var ErrNoResident = errors.New("control: no resident instance found")

// Request is one parsed command line
type Request struct {
	Command string
	Args    []string
}

func (r Request) String() string {
	return strings.TrimSpace(r.Command + " " + strings.Join(r.Args, " "))
}

// ParseRequest splits a request line into command and arguments.
func ParseRequest(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Request{}, fmt.Errorf("empty request")
	}
	return Request{Command: strings.ToUpper(fields[0]), Args: fields[1:]}, nil
}

// encodeRequest renders the request as a protocol line.
func encodeRequest(command string, args []string) (string, error) {
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\r\n") {
			return "", fmt.Errorf("invalid argument %q", a)
		}
	}
	return Request{Command: strings.ToUpper(command), Args: args}.String() + "\n", nil
}
