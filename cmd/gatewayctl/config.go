package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sweeney/gatewayctl/internal/form"
	"github.com/sweeney/gatewayctl/internal/prompt"
	"github.com/sweeney/gatewayctl/internal/session"
)

// askValue is the input that asks for a secret on the terminal instead.
const askValue = "-"

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the gateway settings",
	}

	get := &cobra.Command{
		Use:   "get [key...]",
		Short: "Print the settings, or the named keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withSession(ctx, func(s *session.Session) error {
				if err := s.LoadSettings(ctx); err != nil {
					return err
				}
				if len(args) == 0 {
					return s.RenderSettings(ctx, a.stdout)
				}
				for _, key := range args {
					v, err := s.Value(ctx, key)
					if err != nil {
						return err
					}
					fmt.Fprintf(a.stdout, "%s=%s\n", key, v)
				}
				return nil
			})
		},
	}

	set := &cobra.Command{
		Use:   "set key=value...",
		Short: "Change settings and save them to the gateway",
		Long: `Change settings and save them to the gateway in one request.

Password keys that need confirmation reuse the given value unless
key-confirm=value is passed as well. A value of "-" asks for a password on
the terminal. Renaming the device asks before following it to its new
address; use --yes or --no to answer up front.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			edits, err := parseAssignments(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.withSession(ctx, func(s *session.Session) error {
				if err := s.LoadSettings(ctx); err != nil {
					return err
				}
				if err := a.applyEdits(ctx, s, edits); err != nil {
					return err
				}
				if err := s.Save(ctx); err != nil {
					return err
				}
				pending, err := s.Pending(ctx)
				if err != nil {
					return err
				}
				if len(pending) > 0 {
					return fmt.Errorf("not saved: %s", strings.Join(pending.Keys(), ", "))
				}
				return nil
			})
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}

type assignment struct {
	key, value string
}

func parseAssignments(args []string) ([]assignment, error) {
	out := make([]assignment, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out = append(out, assignment{key, value})
	}
	return out, nil
}

func (a *app) applyEdits(ctx context.Context, s *session.Session, edits []assignment) error {
	given := map[string]bool{}
	for _, e := range edits {
		given[e.key] = true
	}

	for _, e := range edits {
		value := e.value
		if value == askValue {
			v, err := a.readSecret(ctx, e.key)
			if err != nil {
				return err
			}
			value = v
		}
		needsConfirm, err := s.NeedsConfirm(ctx, e.key)
		if err != nil {
			return err
		}
		if !needsConfirm {
			if err := s.Set(ctx, e.key, value); err != nil {
				return err
			}
			continue
		}

		// Set the value first; it stays invalid until confirmed.
		err = s.Set(ctx, e.key, value)
		if err != nil && !errors.Is(err, form.ErrMismatch) {
			return err
		}
		if given[e.key+form.ConfirmSuffix] {
			continue
		}
		confirm := value
		if e.value == askValue {
			if confirm, err = a.readSecret(ctx, e.key+form.ConfirmSuffix); err != nil {
				return err
			}
		}
		if err := s.Set(ctx, e.key+form.ConfirmSuffix, confirm); err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
	}
	return nil
}

func (a *app) readSecret(ctx context.Context, key string) (string, error) {
	p := prompt.Password{In: a.stdin, Out: a.stderr, Label: key + ": "}
	v, err := p.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func newDebugCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Show or change the gateway debug flags",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the debug flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags, err := a.client().FetchDebug(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch debug flags: %w", err)
			}
			return printDebugFlags(a, flags)
		},
	}

	set := &cobra.Command{
		Use:   "set flag=true|false...",
		Short: "Change debug flags",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			edits, err := parseAssignments(args)
			if err != nil {
				return err
			}
			changes := map[string]bool{}
			for _, e := range edits {
				if _, ok := form.DebugFlags[e.key]; !ok {
					return fmt.Errorf("unknown debug flag %q", e.key)
				}
				on, err := strconv.ParseBool(e.value)
				if err != nil {
					return fmt.Errorf("%s: expected true or false", e.key)
				}
				changes[e.key] = on
			}
			flags, err := a.client().PushDebug(cmd.Context(), changes)
			if err != nil {
				return fmt.Errorf("push debug flags: %w", err)
			}
			return printDebugFlags(a, flags)
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}

func printDebugFlags(a *app, flags map[string]bool) error {
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%v\t%s\n", name, flags[name], form.DebugFlags[name])
	}
	return tw.Flush()
}
