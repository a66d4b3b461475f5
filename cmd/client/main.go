package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/WILLJB02/Networked-Threaded-Chat-System/pkg/client"
)

const (
	exitNormal = 0
	exitUsage  = 1
	exitComms  = 2
	exitKicked = 3
	exitAuth   = 4
)

func usageError() {
	fmt.Fprintln(os.Stderr, "Usage: client name authfile port")
	os.Exit(exitUsage)
}

func commsError() {
	fmt.Fprintln(os.Stderr, "Communications error")
	os.Exit(exitComms)
}

// readSecret returns the first line of the auth file.
func readSecret(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Scan()
	return scanner.Text(), scanner.Err()
}

func main() {
	if len(os.Args) != 4 {
		usageError()
	}
	name := os.Args[1]
	secret, err := readSecret(os.Args[2])
	if err != nil {
		usageError()
	}
	port, err := strconv.Atoi(os.Args[3])
	if err != nil {
		usageError()
	}

	c, err := client.Dial("localhost", port)
	if err != nil {
		commsError()
	}
	defer c.Close()
	c.SetOutput(os.Stdout)

	if err := c.Authenticate(secret); err != nil {
		if errors.Is(err, client.ErrAuthRejected) {
			fmt.Fprintln(os.Stderr, "Authentication error")
			os.Exit(exitAuth)
		}
		commsError()
	}

	if _, err := c.Negotiate(name); err != nil {
		commsError()
	}

	switch err := c.Run(os.Stdin); {
	case err == nil:
		os.Exit(exitNormal)
	case errors.Is(err, client.ErrKicked):
		fmt.Fprintln(os.Stderr, "Kicked")
		os.Exit(exitKicked)
	default:
		commsError()
	}
}
