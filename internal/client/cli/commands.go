package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/dmitrijs2005/gophauth/internal/common"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
)

func (a *App) readPassword(prompt string) (string, error) {
	pw, err := getPassword(prompt, a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

// SignUp prompts for the account fields and registers a new user.
func (a *App) SignUp(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	firstName, err := GetSimpleText(a.reader, "Enter first name", a.out)
	if err != nil {
		return err
	}
	lastName, err := GetSimpleText(a.reader, "Enter last name", a.out)
	if err != nil {
		return err
	}
	password, err := a.readPassword("Enter password")
	if err != nil {
		return err
	}

	user, err := a.client.SignUp(ctx, email, password, firstName, lastName)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Registered %s (id %s)\n", user.GetEmail(), user.GetId())
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := a.readPassword("Enter password")
	if err != nil {
		return err
	}

	resp, err := a.client.Login(ctx, email, password)
	if err != nil {
		return err
	}

	a.email = resp.GetUser().GetEmail()
	if a.email == "" {
		a.email = email
	}
	fmt.Fprintf(a.out, "Logged in as %s, access token expires in %s\n",
		a.email, time.Duration(resp.GetExpiresIn())*time.Second)
	return nil
}

// Validate checks token, or the session's access token when token is empty.
func (a *App) Validate(ctx context.Context, token string) error {
	resp, err := a.client.ValidateToken(ctx, token)
	if err != nil {
		return err
	}
	if !resp.GetValid() {
		fmt.Fprintln(a.out, "Token is not valid:", resp.GetMessage())
		return nil
	}
	a.printUser(resp.GetUser())
	return nil
}

func (a *App) ForgotPassword(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	msg, err := a.client.ForgotPassword(ctx, email)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func (a *App) ResetPassword(ctx context.Context) error {
	token, err := GetSimpleText(a.reader, "Enter reset token", a.out)
	if err != nil {
		return err
	}
	password, err := a.readPassword("Enter new password")
	if err != nil {
		return err
	}
	msg, err := a.client.ResetPassword(ctx, token, password)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if err := a.client.Refresh(ctx); err != nil {
		if errors.Is(err, client.ErrInvalidToken) {
			a.email = ""
		}
		return err
	}
	fmt.Fprintln(a.out, "Tokens refreshed")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.client.Logout(ctx); err != nil {
		return err
	}
	a.email = ""
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) printUser(u *pb.User) {
	fmt.Fprintf(a.out, "Token is valid\n  id:     %s\n  email:  %s\n  name:   %s %s\n  active: %t\n",
		u.GetId(), u.GetEmail(), u.GetFirstName(), u.GetLastName(), u.GetIsActive())
	if u.GetLastLoginAt() > 0 {
		fmt.Fprintf(a.out, "  last login: %s\n", time.Unix(u.GetLastLoginAt(), 0).UTC().Format(time.RFC3339))
	}
}
