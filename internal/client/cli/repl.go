package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isUnlocked() bool
	isRemote() bool
	Status(ctx context.Context) error
	Setup(ctx context.Context) error
	Unlock(ctx context.Context) error
	Lock(ctx context.Context, args []string) error
	Refresh(ctx context.Context) error
	ChangePassword(ctx context.Context) error
	Add(ctx context.Context, args []string) error
	List(ctx context.Context) error
	Show(ctx context.Context, args []string) error
	Update(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	SignUp(ctx context.Context) error
	SignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
}

const (
	helpLocked   = "Available commands: status, setup, unlock, lock [--forget], help, exit"
	helpUnlocked = "Available commands: status, (l)ist, show <id>, add note|login|card, update <id>, delete <id>, refresh, passwd, lock [--forget], help, exit"
	helpAccounts = "Account commands: signup, signin, signout"
)

// runREPL starts a simple read–eval–print loop for the keyvault CLI.
//
// It reads a line from reader, parses the first token as the command and
// the rest as its arguments, and dispatches to methods on 'a'. The loop
// exits on EOF or when the user types "exit" or "quit".
//
// Errors returned by command handlers are ignored here; handlers report
// their own errors to the user.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("kv %s > ", statusFn()))

		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isUnlocked() {
				printlnFn(helpUnlocked)
			} else {
				printlnFn(helpLocked)
			}
			if a.isRemote() {
				printlnFn(helpAccounts)
			}

		case "status":
			_ = a.Status(ctx)

		case "setup":
			_ = a.Setup(ctx)

		case "unlock":
			_ = a.Unlock(ctx)

		case "lock":
			_ = a.Lock(ctx, args)

		case "refresh":
			_ = a.Refresh(ctx)

		case "passwd":
			_ = a.ChangePassword(ctx)

		case "add":
			_ = a.Add(ctx, args)

		case "l", "list":
			_ = a.List(ctx)

		case "show":
			_ = a.Show(ctx, args)

		case "update":
			_ = a.Update(ctx, args)

		case "delete", "rm":
			_ = a.Delete(ctx, args)

		case "signup":
			_ = a.SignUp(ctx)

		case "signin":
			_ = a.SignIn(ctx)

		case "signout":
			_ = a.SignOut(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			return
		}
	}
}
