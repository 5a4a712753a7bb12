package main

import (
	"fmt"
	"strings"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/plan"
)

// elevationArgs is the <pipe> <secret> <ppid> triple carried by each of
// the three -burn.* connection switches.
type elevationArgs struct {
	PipeName string
	Secret   string
	ParentPID string
}

// cliOptions is the parsed command line. The switch set and single-dash
// convention follow a chained bootstrapper's external interface rather
// than a typical Go CLI: cobra/pflag's double-dash "--long" convention
// has no equivalent here, so this parser is hand-rolled against
// strings.HasPrefix(arg, "-") instead of a flag library.
type cliOptions struct {
	Quiet   bool
	Passive bool

	RestartMode string // "", "norestart", "forcerestart", "promptrestart"

	LayoutRequested bool
	LayoutDir       string
	Uninstall       bool
	Repair          bool
	Modify          bool
	Package         bool
	Help            bool

	LogPath       string
	LogAppendPath string

	Elevated   *elevationArgs
	Unelevated *elevationArgs
	Embedded   *elevationArgs

	RunOnce            bool
	IgnoreDependencies []string
	DisableUnelevate   bool
	RelatedDetect      []string
	RelatedUpgrade     []string
	RelatedAddon       []string
	RelatedPatch       []string

	// ResumeCommandLine is forwarded to the planner unchanged; it is the
	// switch set a resumed-after-restart invocation replays.
	ResumeCommandLine []string

	// UnknownBurnSwitches were -burn.* but not one this engine
	// recognizes; they are logged and ignored for forward compatibility.
	UnknownBurnSwitches []string

	// Passthrough holds every other unrecognized switch, forwarded to
	// the UX unchanged per the external interface contract.
	Passthrough []string
}

func parseArgs(args []string) (*cliOptions, error) {
	opts := &cliOptions{ResumeCommandLine: args}

	takeN := func(i, n int) ([]string, int, error) {
		if i+n >= len(args) {
			return nil, i, errkind.New(errkind.Validation, fmt.Sprintf("%s requires %d argument(s)", args[i], n))
		}
		return args[i+1 : i+1+n], i + n, nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case !strings.HasPrefix(arg, "-"):
			opts.Passthrough = append(opts.Passthrough, arg)
			continue
		}

		switch arg {
		case "-q", "-quiet", "-s", "-silent":
			opts.Quiet = true
		case "-passive":
			opts.Passive = true

		case "-norestart":
			opts.RestartMode = "norestart"
		case "-forcerestart":
			opts.RestartMode = "forcerestart"
		case "-promptrestart":
			opts.RestartMode = "promptrestart"

		case "-layout":
			opts.LayoutRequested = true
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				opts.LayoutDir = args[i+1]
				i++
			}
		case "-uninstall":
			opts.Uninstall = true
		case "-repair":
			opts.Repair = true
		case "-modify":
			opts.Modify = true
		case "-package", "-update":
			opts.Package = true
		case "-help", "-h", "-?":
			opts.Help = true

		case "-l", "-log":
			vals, next, err := takeN(i, 1)
			if err != nil {
				return nil, err
			}
			opts.LogPath = vals[0]
			i = next
		case "-burn.log.append":
			vals, next, err := takeN(i, 1)
			if err != nil {
				return nil, err
			}
			opts.LogAppendPath = vals[0]
			i = next

		case "-burn.elevated":
			vals, next, err := takeN(i, 3)
			if err != nil {
				return nil, err
			}
			opts.Elevated = &elevationArgs{PipeName: vals[0], Secret: vals[1], ParentPID: vals[2]}
			i = next
		case "-burn.unelevated":
			vals, next, err := takeN(i, 3)
			if err != nil {
				return nil, err
			}
			opts.Unelevated = &elevationArgs{PipeName: vals[0], Secret: vals[1], ParentPID: vals[2]}
			i = next
		case "-burn.embedded":
			vals, next, err := takeN(i, 3)
			if err != nil {
				return nil, err
			}
			opts.Embedded = &elevationArgs{PipeName: vals[0], Secret: vals[1], ParentPID: vals[2]}
			i = next

		case "-burn.runonce":
			opts.RunOnce = true
		case "-burn.disable.unelevate":
			opts.DisableUnelevate = true

		default:
			switch {
			case strings.HasPrefix(arg, "-burn.ignoredependencies="):
				opts.IgnoreDependencies = strings.Split(strings.TrimPrefix(arg, "-burn.ignoredependencies="), ",")
			case strings.HasPrefix(arg, "-burn.related.detect="):
				opts.RelatedDetect = strings.Split(strings.TrimPrefix(arg, "-burn.related.detect="), ",")
			case strings.HasPrefix(arg, "-burn.related.upgrade="):
				opts.RelatedUpgrade = strings.Split(strings.TrimPrefix(arg, "-burn.related.upgrade="), ",")
			case strings.HasPrefix(arg, "-burn.related.addon="):
				opts.RelatedAddon = strings.Split(strings.TrimPrefix(arg, "-burn.related.addon="), ",")
			case strings.HasPrefix(arg, "-burn.related.patch="):
				opts.RelatedPatch = strings.Split(strings.TrimPrefix(arg, "-burn.related.patch="), ",")
			case strings.HasPrefix(arg, "-burn."):
				opts.UnknownBurnSwitches = append(opts.UnknownBurnSwitches, arg)
			default:
				opts.Passthrough = append(opts.Passthrough, arg)
			}
		}
	}

	return opts, nil
}

// requestedAction maps the parsed action switches onto the planner's
// RequestedAction, in the priority order the external interface implies:
// layout first (it never combines with an install/repair run), then
// uninstall, repair, modify, defaulting to install.
func (o *cliOptions) requestedAction() (plan.RequestedAction, error) {
	switch {
	case o.LayoutRequested:
		return plan.RequestedLayout, nil
	case o.Uninstall:
		return plan.RequestedUninstall, nil
	case o.Repair:
		return plan.RequestedRepair, nil
	case o.Modify:
		return plan.RequestedModify, nil
	default:
		return plan.RequestedInstall, nil
	}
}

func printUsage() {
	fmt.Println(`chainboot - chained bundle installer

Usage: chainboot [options]

Display:
  -q, -quiet, -s, -silent    suppress UX output
  -passive                   show progress only, no prompts

Restart:
  -norestart | -forcerestart | -promptrestart

Action:
  -layout [dir]              copy the bundle and its payloads to dir, install nothing
  -uninstall
  -repair
  -modify
  -package, -update           install (or apply an update package)
  -help, -h, -?

Log:
  -l, -log <path>
  -burn.log.append <path>`)
}
