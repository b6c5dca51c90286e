// SPDX-License-Identifier: MIT
package main

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"strconv"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"

	"github.com/oskern/netstack/tcp"
)

// console reads commands from stdin and drives the engine. It returns
// when the input ends or on "quit".
func console(stack *tcp.Stack, log *logrus.Logger) error {
	conns := make(map[int]*tcp.Conn)
	nextID := 1

	fmt.Println(`netstackd console; "help" lists commands`)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("netstack> ")
	for scanner.Scan() {
		fields, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Println("parse error:", err)
			fields = nil
		}
		if len(fields) == 0 {
			fmt.Print("netstack> ")
			continue
		}

		switch fields[0] {
		case "connect":
			if len(fields) != 3 {
				fmt.Println("usage: connect <ip> <port>")
				break
			}
			addr, err := netip.ParseAddr(fields[1])
			if err != nil {
				fmt.Println("bad address:", err)
				break
			}
			port, err := strconv.ParseUint(fields[2], 10, 16)
			if err != nil {
				fmt.Println("bad port:", err)
				break
			}
			conn := stack.Create()
			if err := conn.Connect(addr, uint16(port)); err != nil {
				fmt.Println("connect:", err)
				break
			}
			conns[nextID] = conn
			fmt.Printf("#%d %s -> %s\n", nextID, conn.LocalAddr(), conn.RemoteAddr())
			nextID++

		case "send":
			if len(fields) != 3 {
				fmt.Println("usage: send <id> <text>")
				break
			}
			conn := conns[atoi(fields[1])]
			if conn == nil {
				fmt.Println("no such connection")
				break
			}
			if err := conn.Send([]byte(fields[2])); err != nil {
				fmt.Println("send:", err)
			}

		case "close":
			if len(fields) != 2 {
				fmt.Println("usage: close <id>")
				break
			}
			conn := conns[atoi(fields[1])]
			if conn == nil {
				fmt.Println("no such connection")
				break
			}
			conn.Close()

		case "conns":
			for id, conn := range conns {
				fmt.Printf("#%d %s -> %s %s\n", id, conn.LocalAddr(), conn.RemoteAddr(), conn.State())
			}

		case "quit", "exit":
			return nil

		case "help":
			fmt.Println("commands: connect <ip> <port> | send <id> <text> | close <id> | conns | quit")

		default:
			fmt.Println("unknown command:", fields[0])
		}
		fmt.Print("netstack> ")
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Warn("console input error")
		return err
	}
	return nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
