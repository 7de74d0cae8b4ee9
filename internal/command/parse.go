// Package command parses and executes the requests filaswitch accepts on
// its console: tool changes, presence queries, peripheral housekeeping and
// servo angle edits.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/filaswitch/internal/domain"
)

// ErrUnknownCommand is returned for lines that are not a request.
var ErrUnknownCommand = errors.New("command: unknown command")

// Kind identifies a request.
type Kind int

const (
	KindSelect Kind = iota
	KindPresence
	KindReset
	KindTrigger
	KindAngles
	KindStatus
)

// Request is one parsed console line.
type Request struct {
	Kind Kind

	// Port is the target of KindSelect.
	Port domain.Port

	// Delay is the KindTrigger delay.
	Delay time.Duration

	// Angles holds KindAngles edits. Empty means report.
	Angles map[domain.Port]int
}

// Parse parses one line such as "T2", "M412", "M240 D500" or "M281 A30 C110".
func Parse(line string) (Request, error) {
	words := strings.Fields(strings.ToUpper(strings.TrimSpace(line)))
	if len(words) == 0 {
		return Request{}, fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}

	head, args := words[0], words[1:]
	switch {
	case head == "STATUS":
		return Request{Kind: KindStatus}, nil
	case head == "M412":
		return Request{Kind: KindPresence}, nil
	case head == "M709":
		return Request{Kind: KindReset}, nil
	case head == "M240":
		delay, err := parseDelay(args)
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindTrigger, Delay: delay}, nil
	case head == "M281":
		edits, err := ParseAngleWords(args)
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindAngles, Angles: edits}, nil
	case strings.HasPrefix(head, "T") && len(head) > 1:
		n, err := strconv.Atoi(head[1:])
		if err != nil || n < 0 {
			return Request{}, fmt.Errorf("%w: %q", ErrUnknownCommand, line)
		}
		return Request{Kind: KindSelect, Port: domain.Port(n)}, nil
	}
	return Request{}, fmt.Errorf("%w: %q", ErrUnknownCommand, line)
}

func parseDelay(args []string) (time.Duration, error) {
	for _, w := range args {
		if w[0] != 'D' {
			continue
		}
		ms, err := strconv.Atoi(w[1:])
		if err != nil || ms < 0 {
			return 0, fmt.Errorf("M240: bad delay %q", w)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, nil
}

// ParseAngleWords parses letter words like "A30 B70" into per-port angles.
// A "P<n>" servo index word is accepted and ignored.
func ParseAngleWords(words []string) (map[domain.Port]int, error) {
	edits := make(map[domain.Port]int)
	for _, w := range words {
		w = strings.ToUpper(w)
		if len(w) < 2 {
			return nil, fmt.Errorf("M281: bad word %q", w)
		}
		if w[0] == 'P' {
			continue
		}
		port, ok := domain.PortForLetter(w[0])
		if !ok {
			return nil, fmt.Errorf("M281: unknown port letter %q", w[0])
		}
		angle, err := strconv.Atoi(w[1:])
		if err != nil {
			return nil, fmt.Errorf("M281: bad angle %q", w)
		}
		if angle < 0 || angle > 180 {
			return nil, fmt.Errorf("M281: angle %d out of range", angle)
		}
		edits[port] = angle
	}
	return edits, nil
}

// FormatAngles renders the angle table of servo as an M281 line, e.g.
// "M281 P0 A30 B70". The line is accepted back as an edit.
func FormatAngles(servo int, angles []int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "M281 P%d", servo)
	for i, a := range angles {
		fmt.Fprintf(&b, " %c%d", domain.Port(i).Letter(), a)
	}
	return b.String()
}
