package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

func (a *App) prompt() string {
	if a.isLoggedIn() {
		return fmt.Sprintf("authctl (%s)> ", a.email)
	}
	return "authctl> "
}

func (a *App) help() {
	if a.isLoggedIn() {
		fmt.Fprintln(a.out, "Available commands: validate [token], refresh, logout, help, exit")
		return
	}
	fmt.Fprintln(a.out, "Available commands: signup, login, validate <token>, forgot, reset, help, exit")
}

// repl reads one command per line and dispatches it. Command errors are
// printed and the loop goes on; it ends on exit, EOF or ctx cancellation.
func (a *App) repl(ctx context.Context) error {
	fmt.Fprintln(a.out, "authctl (type 'help' for commands)")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Fprint(a.out, a.prompt())
		line, err := a.reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}
			if line == "" {
				return nil
			}
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			a.help()
		case "signup", "register":
			cmdErr = a.SignUp(ctx)
		case "login":
			cmdErr = a.Login(ctx)
		case "validate":
			token := ""
			if len(args) > 0 {
				token = args[0]
			}
			cmdErr = a.Validate(ctx, token)
		case "forgot":
			cmdErr = a.ForgotPassword(ctx)
		case "reset":
			cmdErr = a.ResetPassword(ctx)
		case "refresh":
			cmdErr = a.Refresh(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return nil
		default:
			fmt.Fprintln(a.out, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintln(a.out, "Error:", cmdErr)
		}
	}
}
