// Package cli implements the adminctl commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/console"
	"github.com/odyssey-erp/storefront/internal/roles"
)

// Exit codes shared by all commands.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitUsage        = 2
	ExitDenied       = 3
	ExitStepUpNeeded = 4
)

// Options configures a Console.
type Options struct {
	Server     string
	CookieName string
	StatePath  string
	Timeout    time.Duration
	JSONOutput bool
	Logger     *slog.Logger
	Prompt     Prompt
	Stdout     io.Writer
	Stderr     io.Writer
	// Store overrides the file-backed console state.
	Store console.Store
}

// Console runs operator commands against one server session.
type Console struct {
	server    string
	client    *console.Client
	auth      *console.Authorizer
	elevation *console.Elevation
	sessions  SessionFile
	prompt    Prompt
	json      bool
	stdout    io.Writer
	stderr    io.Writer
}

// NewConsole wires the API client, authorizer and elevation flow.
func NewConsole(opts Options) (*Console, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(opts.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	if opts.StatePath == "" {
		path, err := console.DefaultStatePath()
		if err != nil {
			return nil, err
		}
		opts.StatePath = path
	}
	sessions := SessionFile{Path: SessionPathFor(opts.StatePath)}
	session, err := sessions.Load(opts.Server)
	if err != nil {
		return nil, err
	}
	client, err := console.NewClient(opts.Server, opts.CookieName, session, opts.Timeout)
	if err != nil {
		return nil, err
	}
	store := opts.Store
	if store == nil {
		store = console.NewFileStore(opts.StatePath)
	}
	auth := console.NewAuthorizer(store, client, opts.Logger, opts.Timeout)
	return &Console{
		server:    opts.Server,
		client:    client,
		auth:      auth,
		elevation: console.NewElevation(auth, client),
		sessions:  sessions,
		prompt:    opts.Prompt,
		json:      opts.JSONOutput,
		stdout:    opts.Stdout,
		stderr:    opts.Stderr,
	}, nil
}

// Run dispatches args[0] to a command and returns the process exit code.
func (c *Console) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		c.usage()
		return ExitUsage
	}
	switch args[0] {
	case "login":
		if len(args) != 2 {
			c.errorf("usage: adminctl login <email>")
			return ExitUsage
		}
		return c.Login(ctx, args[1])
	case "logout":
		return c.Logout(ctx)
	case "status":
		return c.Status()
	case "role":
		if len(args) != 2 {
			c.errorf("usage: adminctl role <viewer|admin|superadmin>")
			return ExitUsage
		}
		return c.SelectRole(ctx, args[1])
	case "can":
		if len(args) != 3 {
			c.errorf("usage: adminctl can <resource> <read|write|delete>")
			return ExitUsage
		}
		return c.Can(ctx, args[1], args[2])
	case "caps":
		return c.Caps(ctx)
	default:
		c.usage()
		return ExitUsage
	}
}

// Login authenticates and resets the console to the viewer role.
func (c *Console) Login(ctx context.Context, email string) int {
	password, err := c.ask("Password")
	if err != nil {
		c.errorf("login: %v", err)
		return ExitError
	}
	if err := c.client.Login(ctx, strings.TrimSpace(email), password); err != nil {
		c.errorf("login: %v", err)
		return ExitError
	}
	if err := c.sessions.Save(c.server, c.client.Session()); err != nil {
		c.errorf("login: save session: %v", err)
		return ExitError
	}
	if _, err := c.elevation.Select(authz.RoleViewer); err != nil {
		c.errorf("login: reset role: %v", err)
		return ExitError
	}
	_, _ = fmt.Fprintf(c.stdout, "Logged in as %s (acting as %s)\n", email, roles.DefaultLabel(authz.RoleViewer))
	return ExitOK
}

// Logout ends the server session and drops any verified role.
func (c *Console) Logout(ctx context.Context) int {
	if err := c.client.Logout(ctx); err != nil {
		c.errorf("logout: %v", err)
	}
	if err := c.sessions.Clear(); err != nil {
		c.errorf("logout: %v", err)
		return ExitError
	}
	if _, err := c.elevation.Select(authz.RoleViewer); err != nil {
		c.errorf("logout: reset role: %v", err)
		return ExitError
	}
	_, _ = fmt.Fprintln(c.stdout, "Logged out")
	return ExitOK
}

// StatusReport is the JSON form of adminctl status.
type StatusReport struct {
	Role              string `json:"role"`
	StepUpVerified    bool   `json:"step_up_verified"`
	AtLeastPrivileged bool   `json:"at_least_privileged"`
	TopPrivileged     bool   `json:"top_privileged"`
	LoggedIn          bool   `json:"logged_in"`
}

// Status prints the local authorization state.
func (c *Console) Status() int {
	st := c.auth.State()
	report := StatusReport{
		Role:              st.CurrentRole.String(),
		StepUpVerified:    st.StepUpVerified,
		AtLeastPrivileged: c.auth.IsAtLeastPrivileged(),
		TopPrivileged:     c.auth.IsTopPrivileged(),
		LoggedIn:          c.client.Session() != "",
	}
	if c.json {
		return c.encode(report)
	}
	verified := "not verified"
	if report.StepUpVerified {
		verified = "verified"
	}
	_, _ = fmt.Fprintf(c.stdout, "Role:      %s (%s)\n", roles.DefaultLabel(st.CurrentRole), verified)
	_, _ = fmt.Fprintf(c.stdout, "Logged in: %t\n", report.LoggedIn)
	return ExitOK
}

// SelectRole runs the elevation flow, prompting for the step-up secret when
// the role needs one.
func (c *Console) SelectRole(ctx context.Context, name string) int {
	role, err := authz.ParseRole(name)
	if err != nil {
		c.errorf("role: %v", err)
		return ExitUsage
	}
	phase, err := c.elevation.Select(role)
	if err != nil {
		c.errorf("role: %v", err)
		return ExitError
	}
	if phase == console.PhaseAwaitingSecret {
		secret, err := c.ask("Step-up secret for " + roles.DefaultLabel(role))
		if err != nil {
			st := c.elevation.Cancel()
			c.errorf("role: cancelled, still acting as %s", roles.DefaultLabel(st.CurrentRole))
			return ExitError
		}
		if err := c.elevation.Submit(ctx, secret); err != nil {
			st := c.auth.State()
			switch {
			case errors.Is(err, console.ErrSecretMismatch):
				c.errorf("role: secret mismatch, still acting as %s", roles.DefaultLabel(st.CurrentRole))
				return ExitStepUpNeeded
			case errors.Is(err, console.ErrNotLoggedIn):
				c.errorf("role: not logged in, run adminctl login first")
			default:
				c.errorf("role: %v", err)
			}
			return ExitError
		}
	}
	_, _ = fmt.Fprintf(c.stdout, "Acting as %s\n", roles.DefaultLabel(c.auth.State().CurrentRole))
	return ExitOK
}

// Can answers whether the current state enables action on resource.
func (c *Console) Can(ctx context.Context, resource, action string) int {
	res, err := authz.ParseResource(resource)
	if err != nil {
		c.errorf("can: %v", err)
		return ExitUsage
	}
	act, err := authz.ParseAction(action)
	if err != nil {
		c.errorf("can: %v", err)
		return ExitUsage
	}
	c.refresh(ctx)
	switch err := c.auth.Check(res, act); {
	case err == nil:
		_, _ = fmt.Fprintln(c.stdout, "allowed")
		return ExitOK
	case errors.Is(err, console.ErrStepUpRequired):
		_, _ = fmt.Fprintln(c.stdout, "step-up required")
		return ExitStepUpNeeded
	default:
		_, _ = fmt.Fprintln(c.stdout, "denied")
		return ExitDenied
	}
}

// Caps lists the enabled actions for every resource.
func (c *Console) Caps(ctx context.Context) int {
	c.refresh(ctx)
	caps := c.auth.Capabilities()
	if c.json {
		out := make(map[string][]string, len(caps))
		for res, set := range caps {
			out[res.String()] = set.Names()
		}
		return c.encode(out)
	}
	title := cases.Title(language.English)
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Acting as %s\n", roles.DefaultLabel(c.auth.State().CurrentRole))
	for _, res := range authz.Resources() {
		names := caps[res].Names()
		actions := "-"
		if len(names) > 0 {
			actions = strings.Join(names, ", ")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", title.String(res.String()), actions)
	}
	if err := tw.Flush(); err != nil {
		c.errorf("caps: %v", err)
		return ExitError
	}
	return ExitOK
}

// refresh loads grants; failures leave everything denied.
func (c *Console) refresh(ctx context.Context) {
	if err := c.auth.Refresh(ctx); err != nil {
		if errors.Is(err, console.ErrNotLoggedIn) {
			c.errorf("warning: not logged in, every action is denied")
			return
		}
		c.errorf("warning: could not load grants: %v", err)
	}
}

func (c *Console) ask(label string) (string, error) {
	if c.prompt == nil {
		return "", errors.New("no prompt available")
	}
	return c.prompt(label)
}

func (c *Console) encode(v any) int {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		c.errorf("encode json: %v", err)
		return ExitError
	}
	return ExitOK
}

func (c *Console) errorf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.stderr, format+"\n", args...)
}

func (c *Console) usage() {
	c.errorf(`usage: adminctl [flags] <command>

commands:
  login <email>              authenticate against the server
  logout                     end the session
  status                     show the acting role
  role <name>                switch role, prompting for the step-up secret
  can <resource> <action>    check one capability
  caps                       list capabilities
  jobs trigger <task>        enqueue a retention job
  jobs stats                 show queue statistics`)
}
