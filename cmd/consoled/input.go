package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// broadcaster is the subset of the console server driven by operator input.
type broadcaster interface {
	SendReadOnly(source string, lines ...string) (int, error)
	SendReadReply(source string, maxReplyLength uint32, lines ...string) (uint32, error)
	ClearReadReply(id uint32) bool
	SendStatus(line1, line2 string) (int, error)
	Reset()
}

// handleLine maps one input line to a console operation:
//
//	?text        read-reply
//	!line1|line2 status
//	~id          clear read-reply
//	#reset       drop pending read-replies
//	anything else read-only
func handleLine(b broadcaster, source string, maxReply uint32, line string) (string, error) {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case line == "":
		return "", nil
	case line == "#reset":
		b.Reset()
		return "reset", nil
	case strings.HasPrefix(line, "?"):
		id, err := b.SendReadReply(source, maxReply, line[1:])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("read-reply %d pending", id), nil
	case strings.HasPrefix(line, "!"):
		line1, line2, _ := strings.Cut(line[1:], "|")
		n, err := b.SendStatus(line1, line2)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("status sent to %d", n), nil
	case strings.HasPrefix(line, "~"):
		id, err := strconv.ParseUint(strings.TrimSpace(line[1:]), 10, 32)
		if err != nil {
			return "", fmt.Errorf("parse read-reply id: %w", err)
		}
		if !b.ClearReadReply(uint32(id)) {
			return fmt.Sprintf("read-reply %d not pending", id), nil
		}
		return fmt.Sprintf("read-reply %d cleared", id), nil
	default:
		n, err := b.SendReadOnly(source, line)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("sent to %d", n), nil
	}
}

// pumpInput feeds lines from r to b until EOF or ctx is done. Bad lines are
// reported and skipped.
func pumpInput(ctx context.Context, r io.Reader, b broadcaster, source string, maxReply uint32, report func(string)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, err := handleLine(b, source, maxReply, scanner.Text())
		if err != nil {
			report("error: " + err.Error())
			continue
		}
		if result != "" {
			report(result)
		}
	}
	return scanner.Err()
}
