package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// selectMenu renders items in raw mode and lets the user pick one with the
// arrow keys. Returns -1 on Ctrl-C, q or a terminal error.
func selectMenu(prompt string, items []string) int {
	if len(items) == 0 {
		return -1
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting raw mode: %v\r\n", err)
		return -1
	}
	defer term.Restore(fd, oldState)

	selected := 0
	render := func() {
		for i, item := range items {
			fmt.Print("\033[2K\r")
			if i == selected {
				fmt.Printf("> %s\r\n", item)
			} else {
				fmt.Printf("  %s\r\n", item)
			}
		}
	}

	fmt.Printf("%s\r\n", prompt)
	render()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return -1
		}

		if n == 1 {
			switch buf[0] {
			case 0x0D, 0x0A: // Enter
				fmt.Printf("\r\n")
				return selected
			case 0x03, 'q': // Ctrl-C
				fmt.Printf("\r\n")
				return -1
			case 'k':
				buf[0], buf[1], buf[2], n = 0x1B, '[', 'A', 3
			case 'j':
				buf[0], buf[1], buf[2], n = 0x1B, '[', 'B', 3
			}
		}
		if n != 3 || buf[0] != 0x1B || buf[1] != '[' {
			continue
		}

		moved := false
		switch buf[2] {
		case 'A': // Up
			if selected > 0 {
				selected--
				moved = true
			}
		case 'B': // Down
			if selected < len(items)-1 {
				selected++
				moved = true
			}
		}
		if moved {
			fmt.Printf("\033[%dA", len(items))
			render()
		}
	}
}
