package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"

	"kvs/internal/storage"
	"kvs/pkg/client"
)

const defaultAddr = "127.0.0.1:4000"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one kvs-client invocation and returns the exit status.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("kvs-client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", defaultAddr, "Server address as IP:PORT")
	fs.Usage = func() { printUsage(stderr) }

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return 2
	}
	if len(positional) == 0 {
		printUsage(stderr)
		return 2
	}

	if positional[0] == "shell" {
		if len(positional) != 1 {
			printUsage(stderr)
			return 2
		}
		c, err := client.Connect(*addr)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		defer c.Close()
		return shell(c, stdin, stdout, stderr)
	}

	if err := checkArgs(positional); err != nil {
		fmt.Fprintln(stderr, err)
		printUsage(stderr)
		return 2
	}

	c, err := client.Connect(*addr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer c.Close()
	return execute(c, positional, stdout, stderr)
}

// parseInterspersed lets flags follow positional arguments, as in
// "get KEY --addr host:port".
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if n := len(args) - len(rest); n > 0 && args[n-1] == "--" {
			return append(positional, rest...), nil
		}
		args = rest
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func checkArgs(args []string) error {
	want := map[string]int{"set": 3, "get": 2, "rm": 2}
	n, ok := want[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	if len(args) != n {
		return fmt.Errorf("%s: expected %d argument(s), got %d", args[0], n-1, len(args)-1)
	}
	return nil
}

// execute runs a validated command against c.
func execute(c *client.Client, args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "set":
		if err := c.Set(args[1], args[2]); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	case "get":
		value, err := c.Get(args[1])
		switch {
		case errors.Is(err, storage.ErrKeyNotFound):
			fmt.Fprintln(stdout, "Key not found")
		case err != nil:
			fmt.Fprintln(stderr, err)
			return 1
		default:
			fmt.Fprintln(stdout, value)
		}
	case "rm":
		if err := c.Remove(args[1]); err != nil {
			if errors.Is(err, storage.ErrKeyNotFound) {
				fmt.Fprintln(stderr, "Key not found")
			} else {
				fmt.Fprintln(stderr, err)
			}
			return 1
		}
	}
	return 0
}

// shell reads commands line by line until EOF or "exit". Errors are printed
// and the session continues; the status reflects the last command.
func shell(c *client.Client, stdin io.Reader, stdout, stderr io.Writer) int {
	status := 0
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "kvs> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args, err := shellquote.Split(line)
		if err != nil {
			fmt.Fprintf(stderr, "parse error: %v\n", err)
			status = 2
			continue
		}
		switch args[0] {
		case "exit", "quit":
			return status
		case "help":
			printShellHelp(stdout)
			continue
		}
		if err := checkArgs(args); err != nil {
			fmt.Fprintln(stderr, err)
			status = 2
			continue
		}
		status = execute(c, args, stdout, stderr)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return status
}

func printShellHelp(w io.Writer) {
	fmt.Fprint(w, `Commands:
  set KEY VALUE   store VALUE under KEY
  get KEY         print the value of KEY
  rm KEY          remove KEY
  exit            leave the shell
Quote arguments containing spaces: set greeting "hello world"
`)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `kvs-client: talk to a kvs-server

Usage:
  kvs-client set KEY VALUE [--addr IP:PORT]
  kvs-client get KEY [--addr IP:PORT]
  kvs-client rm KEY [--addr IP:PORT]
  kvs-client shell [--addr IP:PORT]

The default address is `+defaultAddr+`.
`)
}
