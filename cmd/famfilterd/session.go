package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/haukened/famfilter/internal/policy/common/log"
	"github.com/haukened/famfilter/internal/policy/domain"
	"github.com/haukened/famfilter/internal/policy/services/manager"
)

// noDevice stands for "evaluate the rule without device overrides".
const noDevice = "-"

// reply is written to the output as one JSON object per request line.
type reply struct {
	Command   string                      `json:"command"`
	Domain    string                      `json:"domain,omitempty"`
	Verdict   *domain.Verdict             `json:"verdict,omitempty"`
	ID        string                      `json:"id,omitempty"`
	Added     []string                    `json:"added,omitempty"`
	Skipped   []string                    `json:"skipped,omitempty"`
	Valid     *bool                       `json:"valid,omitempty"`
	Stats     *domain.OverrideStats       `json:"stats,omitempty"`
	Entries   []domain.LogEntry           `json:"entries,omitempty"`
	Overrides []domain.DeviceRuleOverride `json:"overrides,omitempty"`
	Error     string                      `json:"error,omitempty"`
	Status    int                         `json:"status,omitempty"`
}

// operator is the actor recorded for mutations typed on the request stream.
var operator = manager.Audit{PerformedBy: domain.ActorAdmin}

type command func(app *Application, ctx context.Context, args []string) (reply, error)

// commands maps a leading verb to its handler and the argument counts it accepts.
var commands = map[string]struct {
	min, max int
	run      command
}{
	"check":            {3, 3, (*Application).runCheck},
	"block":            {2, 3, (*Application).runBlock},
	"allow":            {2, 2, (*Application).runAllow},
	"unblock":          {2, 2, (*Application).runUnblock},
	"unallow":          {2, 2, (*Application).runUnallow},
	"block-category":   {2, 2, (*Application).runBlockCategory},
	"unblock-category": {2, 2, (*Application).runUnblockCategory},
	"grant":            {4, 5, (*Application).runGrant},
	"extend":           {2, 2, (*Application).runExtend},
	"expire":           {1, 1, (*Application).runExpire},
	"verify-password":  {2, 2, (*Application).runVerifyPassword},
	"recategorize":     {3, 4, (*Application).runRecategorize},
	"allow-reason":     {3, maxWords, (*Application).runAllowReason},
	"clear-expiry":     {1, 1, (*Application).runClearExpiry},
	"delete-override":  {1, 1, (*Application).runDeleteOverride},
	"stats":            {1, 1, (*Application).runStats},
	"overrides":        {1, 1, (*Application).runOverrides},
	"history":          {1, 2, (*Application).runHistory},
	"device-history":   {1, 2, (*Application).runDeviceHistory},
	"recent":           {1, 1, (*Application).runRecent},
}

// maxWords bounds free-text arguments such as reasons.
const maxWords = 64

// Serve reads newline-delimited requests from in and writes one JSON reply per
// request to out. A bare "<rule-id> <device-id|-> <domain>" line is a check;
// other lines start with a verb from commands. Blank lines and lines starting
// with '#' are skipped. It returns the number of requests handled.
func (app *Application) Serve(ctx context.Context, in io.Reader, out io.Writer) (int, error) {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	enc := json.NewEncoder(out)
	handled := 0
	for {
		select {
		case <-ctx.Done():
			return handled, nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return handled, err
				default:
					return handled, nil
				}
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			handled++
			if err := enc.Encode(app.handle(ctx, line)); err != nil {
				return handled, fmt.Errorf("write reply: %w", err)
			}
		}
	}
}

func (app *Application) handle(ctx context.Context, line string) reply {
	fields := strings.Fields(line)
	verb, args := fields[0], fields[1:]
	cmd, ok := commands[verb]
	if !ok {
		verb, args = "check", fields
		cmd = commands[verb]
	}
	if len(args) < cmd.min || len(args) > cmd.max {
		return failure(verb, fmt.Errorf("%w: %s takes %d to %d arguments, got %d", domain.ErrInvalidInput, verb, cmd.min, cmd.max, len(args)))
	}
	r, err := cmd.run(app, ctx, args)
	if err != nil {
		log.Debug(map[string]any{"command": verb, "error": err.Error()}, "request failed")
		return failure(verb, err)
	}
	r.Command = verb
	return r
}

func failure(verb string, err error) reply {
	return reply{Command: verb, Error: err.Error(), Status: domain.HTTPStatus(err)}
}

func (app *Application) runCheck(ctx context.Context, args []string) (reply, error) {
	device := args[1]
	if device == noDevice {
		device = ""
	}
	v, err := app.checker.Check(ctx, args[0], device, args[2])
	if err != nil {
		return reply{}, err
	}
	return reply{Domain: args[2], Verdict: &v}, nil
}

// block <rule> <pattern>[,<pattern>...] [category]
func (app *Application) runBlock(ctx context.Context, args []string) (reply, error) {
	var category string
	if len(args) == 3 {
		category = args[2]
	}
	patterns := strings.Split(args[1], ",")
	if len(patterns) == 1 {
		entry, err := app.manager.BlockDomain(ctx, manager.BlockDomainInput{
			Audit:        operator,
			RuleID:       args[0],
			Domain:       patterns[0],
			CategorySlug: category,
		})
		return reply{ID: entry.ID, Added: nonEmpty(entry.Domain)}, err
	}
	res, err := app.manager.BulkBlockDomains(ctx, manager.BulkBlockInput{
		Audit:        operator,
		RuleID:       args[0],
		Domains:      patterns,
		CategorySlug: category,
	})
	return bulkReply(res), err
}

// allow <rule> <pattern>[,<pattern>...]
func (app *Application) runAllow(ctx context.Context, args []string) (reply, error) {
	patterns := strings.Split(args[1], ",")
	if len(patterns) == 1 {
		entry, err := app.manager.AllowDomain(ctx, manager.AllowDomainInput{
			Audit:  operator,
			RuleID: args[0],
			Domain: patterns[0],
		})
		return reply{ID: entry.ID, Added: nonEmpty(entry.Domain)}, err
	}
	res, err := app.manager.BulkAllowDomains(ctx, manager.BulkAllowInput{
		Audit:   operator,
		RuleID:  args[0],
		Domains: patterns,
	})
	return bulkReply(res), err
}

func (app *Application) runUnblock(ctx context.Context, args []string) (reply, error) {
	return reply{}, app.manager.RemoveBlockedDomain(ctx, args[0], args[1], operator)
}

func (app *Application) runUnallow(ctx context.Context, args []string) (reply, error) {
	return reply{}, app.manager.RemoveAllowedDomain(ctx, args[0], args[1], operator)
}

func (app *Application) runBlockCategory(ctx context.Context, args []string) (reply, error) {
	rule, err := app.manager.BlockCategory(ctx, args[0], args[1], operator)
	return reply{ID: rule.ID}, err
}

func (app *Application) runUnblockCategory(ctx context.Context, args []string) (reply, error) {
	rule, err := app.manager.UnblockCategory(ctx, args[0], args[1], operator)
	return reply{ID: rule.ID}, err
}

// grant <rule> <device> <type> <value> [minutes]
func (app *Application) runGrant(ctx context.Context, args []string) (reply, error) {
	in := manager.GrantOverrideInput{
		Audit:    operator,
		RuleID:   args[0],
		DeviceID: args[1],
		Type:     domain.OverrideType(args[2]),
		Value:    args[3],
	}
	if len(args) == 5 {
		minutes, err := strconv.Atoi(args[4])
		if err != nil {
			return reply{}, fmt.Errorf("%w: minutes %q is not a number", domain.ErrInvalidInput, args[4])
		}
		in.DurationMinutes = minutes
	}
	o, err := app.manager.GrantOverride(ctx, in)
	return reply{ID: o.ID}, err
}

// extend <override-id> <minutes>
func (app *Application) runExtend(ctx context.Context, args []string) (reply, error) {
	minutes, err := strconv.Atoi(args[1])
	if err != nil {
		return reply{}, fmt.Errorf("%w: minutes %q is not a number", domain.ErrInvalidInput, args[1])
	}
	o, err := app.manager.ExtendOverride(ctx, args[0], minutes, operator)
	return reply{ID: o.ID}, err
}

func (app *Application) runExpire(ctx context.Context, args []string) (reply, error) {
	o, err := app.manager.ExpireOverride(ctx, args[0], operator)
	return reply{ID: o.ID}, err
}

func (app *Application) runVerifyPassword(_ context.Context, args []string) (reply, error) {
	ok, err := app.manager.VerifyAdultPassword(args[0], args[1])
	if err != nil {
		return reply{}, err
	}
	return reply{Valid: &ok}, nil
}

// recategorize <rule> <pattern> <category|-> [severity]
func (app *Application) runRecategorize(ctx context.Context, args []string) (reply, error) {
	category := args[2]
	if category == "-" {
		category = ""
	}
	in := manager.UpdateBlockedInput{
		Audit:        operator,
		RuleID:       args[0],
		Domain:       args[1],
		CategorySlug: &category,
	}
	if len(args) == 4 {
		sev := domain.Severity(strings.ToLower(args[3]))
		in.Severity = &sev
	}
	entry, err := app.manager.UpdateBlockedDomain(ctx, in)
	return reply{ID: entry.ID, Domain: entry.Domain}, err
}

// allow-reason <rule> <pattern> <reason...>
func (app *Application) runAllowReason(ctx context.Context, args []string) (reply, error) {
	reason := strings.Join(args[2:], " ")
	entry, err := app.manager.UpdateAllowedDomain(ctx, manager.UpdateAllowedInput{
		Audit:  operator,
		RuleID: args[0],
		Domain: args[1],
		Reason: &reason,
	})
	return reply{ID: entry.ID, Domain: entry.Domain}, err
}

func (app *Application) runClearExpiry(ctx context.Context, args []string) (reply, error) {
	o, err := app.manager.UpdateOverride(ctx, manager.UpdateOverrideInput{
		Audit:       operator,
		OverrideID:  args[0],
		ClearExpiry: true,
	})
	return reply{ID: o.ID}, err
}

func (app *Application) runDeleteOverride(ctx context.Context, args []string) (reply, error) {
	o, err := app.manager.DeleteOverride(ctx, args[0], operator)
	return reply{ID: o.ID}, err
}

func (app *Application) runStats(_ context.Context, args []string) (reply, error) {
	st, err := app.manager.OverrideStats(args[0])
	if err != nil {
		return reply{}, err
	}
	return reply{ID: args[0], Stats: &st}, nil
}

// overrides <device>
func (app *Application) runOverrides(_ context.Context, args []string) (reply, error) {
	return reply{ID: args[0], Overrides: app.rules.OverridesForDevice(args[0])}, nil
}

// history <rule> [limit]
func (app *Application) runHistory(_ context.Context, args []string) (reply, error) {
	limit, err := limitArg(args)
	if err != nil {
		return reply{}, err
	}
	entries, err := app.recorder.ListForRule(args[0], limit)
	return reply{ID: args[0], Entries: entries}, err
}

// device-history <device> [limit]
func (app *Application) runDeviceHistory(_ context.Context, args []string) (reply, error) {
	limit, err := limitArg(args)
	if err != nil {
		return reply{}, err
	}
	entries, err := app.recorder.ListForDevice(args[0], limit)
	return reply{ID: args[0], Entries: entries}, err
}

// recent <days>
func (app *Application) runRecent(_ context.Context, args []string) (reply, error) {
	days, err := strconv.Atoi(args[0])
	if err != nil {
		return reply{}, fmt.Errorf("%w: days %q is not a number", domain.ErrInvalidInput, args[0])
	}
	entries, err := app.recorder.Recent(days)
	return reply{Entries: entries}, err
}

// limitArg reads the optional second argument; zero means no limit.
func limitArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit %q is not a non-negative number", domain.ErrInvalidInput, args[1])
	}
	return n, nil
}

func bulkReply(res manager.BulkResult) reply {
	r := reply{Added: res.Added, Skipped: res.Skipped}
	if len(res.Errors) > 0 {
		r.Status = domain.HTTPStatus(domain.ErrInvalidInput)
		msgs := make([]string, 0, len(res.Errors))
		for name, msg := range res.Errors {
			msgs = append(msgs, name+": "+msg)
		}
		slices.Sort(msgs)
		r.Error = strings.Join(msgs, "; ")
	}
	return r
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
