package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL drives. App implements it;
// tests provide a stub.
type execIface interface {
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Unlock(ctx context.Context) error
	Lock(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context, ref string, reveal bool) error
	Add(ctx context.Context) error
	Update(ctx context.Context, ref string) error
	Delete(ctx context.Context, ref string) error
	Copy(ctx context.Context, ref string) error
	Generate(ctx context.Context, length string) error
	Passwd(ctx context.Context) error
	Status(ctx context.Context) error
	Logout(ctx context.Context) error
}

const helpText = `Commands:
  register              create a server account (remote store only)
  login                 sign in and unlock
  unlock                re-enter the master secret
  lock                  forget the key now
  list | l              list credentials
  show <n|id> [-r]      show a credential, -r reveals the secret
  add                   add a credential
  update <n|id>         change a credential
  delete <n|id>         delete a credential
  copy <n|id>           copy a secret to the clipboard
  generate [length]     print a random secret
  passwd                change the master secret
  status                show session state
  logout                sign out
  exit | quit           leave`

// runREPL reads commands line by line from reader and dispatches them to a.
// It returns on EOF or on "exit"/"quit". Command errors are printed and the
// loop carries on.
func runREPL(ctx context.Context, a execIface, promptFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprint(w, promptFn())

		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			fmt.Fprintln(w)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help", "?":
			fmt.Fprintln(w, helpText)
		case "register":
			cmdErr = a.Register(ctx)
		case "login":
			cmdErr = a.Login(ctx)
		case "unlock":
			cmdErr = a.Unlock(ctx)
		case "lock":
			cmdErr = a.Lock(ctx)
		case "l", "list":
			cmdErr = a.List(ctx)
		case "show":
			cmdErr = withRef(args, "show <n|id> [-r]", func(ref string) error {
				return a.Show(ctx, ref, len(args) > 1 && args[1] == "-r")
			})
		case "add":
			cmdErr = a.Add(ctx)
		case "update":
			cmdErr = withRef(args, "update <n|id>", func(ref string) error { return a.Update(ctx, ref) })
		case "delete", "rm":
			cmdErr = withRef(args, "delete <n|id>", func(ref string) error { return a.Delete(ctx, ref) })
		case "copy":
			cmdErr = withRef(args, "copy <n|id>", func(ref string) error { return a.Copy(ctx, ref) })
		case "generate", "gen":
			length := ""
			if len(args) > 0 {
				length = args[0]
			}
			cmdErr = a.Generate(ctx, length)
		case "passwd":
			cmdErr = a.Passwd(ctx)
		case "status":
			cmdErr = a.Status(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintln(w, "Error:", describe(cmdErr))
		}
	}
}

var errUsage = errors.New("usage")

func withRef(args []string, usage string, fn func(ref string) error) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: %s", errUsage, usage)
	}
	return fn(args[0])
}
