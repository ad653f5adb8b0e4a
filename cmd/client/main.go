// Command client is a thin terminal client: it dials a relay server,
// writes stdin lines to the socket as frames, and prints frames read
// back, with no command interpretation of its own. Usage:
//
//	client <ip> <port>
package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/chatrelay/relay/relay"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: client <ip> <port>")
		os.Exit(2)
	}
	ip := os.Args[1]
	if _, err := strconv.Atoi(os.Args[2]); err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", os.Args[2], err)
		os.Exit(2)
	}
	addr := net.JoinHostPort(ip, os.Args[2])

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	go readLoop(conn)
	writeLoop(conn)
}

func readLoop(conn net.Conn) {
	reader := bufio.NewReader(conn)
	buf := make([]byte, relay.EnvelopeSize)
	for {
		if _, err := io.ReadFull(reader, buf); err != nil {
			fmt.Fprintln(os.Stderr, "connection closed")
			os.Exit(0)
		}
		end := 0
		for end < len(buf) && buf[end] != 0 {
			end++
		}
		line := strings.TrimRight(string(buf[:end]), "\r\n")
		if line != "" {
			fmt.Println(line)
		}
	}
}

func writeLoop(conn net.Conn) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		frame, err := relay.ParseFrame(scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid input: %v\n", err)
			continue
		}
		if err := relay.WriteEnvelope(conn, frame); err != nil {
			fmt.Fprintf(os.Stderr, "write error: %v\n", err)
			return
		}
	}
}
