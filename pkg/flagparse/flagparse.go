// Package flagparse registers the command-line flags of every command on a
// pflag.FlagSet and collects the ones the user actually set into a map, which
// config.MergeConfigWithFlags overlays on the loaded configuration.
package flagparse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// PositionalNames are the flag names the positional arguments SOURCE REPLICA LOG INTERVAL map to.
var PositionalNames = []string{"source", "replica", "log", "interval"}

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	Config   *string
	LogLevel *string
	Quiet    *bool

	// Shared: Run / Plan / Init
	Source        *string
	Replica       *string
	HashAlgorithm *string
	Workers       *int

	// Shared: Run / Init
	Log            *string
	Interval       *int
	LogMaxSizeMB   *int
	LogKeep        *int
	LogCompression *string
	DigestCache    *int
	DigestCacheTTL *int
	DryRun         *bool
	Watch          *bool
	WatchDebounce  *int
	PreCycleHooks  *string
	PostCycleHooks *string

	// Run specific
	Once *bool

	// Init specific
	Force *bool
}

// Flags is the set of flags registered for one command.
type Flags struct {
	command Command
	fs      *pflag.FlagSet
	f       cliFlags
}

// RegisterGlobal adds the flags shared by every command, usually to a persistent flag set.
func RegisterGlobal(fs *pflag.FlagSet) *Flags {
	fl := &Flags{command: None, fs: fs}
	fl.f.Config = fs.StringP("config", "c", "", "Path to a JSON or YAML configuration file.")
	fl.f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	fl.f.Quiet = fs.BoolP("quiet", "q", false, "Only show notices, warnings and errors on the console. The log file keeps everything.")
	return fl
}

// Register adds the flags of command to fs.
func Register(command Command, fs *pflag.FlagSet) *Flags {
	fl := &Flags{command: command, fs: fs}
	f := &fl.f
	switch command {
	case Run, Init:
		registerTreeFlags(fs, f)
		registerLoopFlags(fs, f)
		if command == Run {
			f.Once = fs.Bool("once", false, "Run a single synchronization cycle and exit.")
		} else {
			f.Force = fs.BoolP("force", "f", false, "Overwrite an existing configuration file.")
		}
	case Plan:
		registerTreeFlags(fs, f)
	}
	return fl
}

func registerTreeFlags(fs *pflag.FlagSet, f *cliFlags) {
	f.Source = fs.String("source", "", "Source directory to mirror from. (Required)")
	f.Replica = fs.String("replica", "", "Replica directory to mirror into. (Required)")
	f.HashAlgorithm = fs.String("hash-algorithm", "", "Content hash used to compare files: 'md5', 'sha1', 'sha256', 'sha512', 'blake2b'.")
	f.Workers = fs.Int("workers", 0, "Number of files copied or deleted in parallel within a phase.")
	f.DigestCache = fs.Int("digest-cache-size", 0, "Remember up to N file digests between cycles, keyed by path, size and modification time (0=off).")
	f.DigestCacheTTL = fs.Int("digest-cache-ttl", 0, "Seconds a remembered digest stays valid.")
}

func registerLoopFlags(fs *pflag.FlagSet, f *cliFlags) {
	f.Log = fs.String("log", "", "Path of the log file. (Required)")
	f.Interval = fs.Int("interval", 0, "Minutes to wait between synchronization cycles. (Required)")
	f.LogMaxSizeMB = fs.Int("log-max-size-mb", 0, "Rotate the log file once it grows past this size (0=never).")
	f.LogKeep = fs.Int("log-keep", 0, "Number of rotated log files to keep.")
	f.LogCompression = fs.String("log-compression", "", "Compression of rotated log files: 'none', 'gzip', 'zstd'.")
	f.DryRun = fs.Bool("dry-run", false, "Show what would be done without making any changes.")
	f.Watch = fs.Bool("watch", false, "Start the next cycle early when the source changes.")
	f.WatchDebounce = fs.Int("watch-debounce-ms", 0, "Quiet period in milliseconds before a burst of changes wakes the scheduler.")
	f.PreCycleHooks = fs.String("pre-cycle-hooks", "", "Comma-separated list of commands to run before every cycle.")
	f.PostCycleHooks = fs.String("post-cycle-hooks", "", "Comma-separated list of commands to run after every cycle.")
}

// ToMap returns the flags explicitly set by the user, keyed by flag name.
// Positional args fill source, replica, log and interval in that order; giving
// the same value both ways is an error.
func (fl *Flags) ToMap(args []string) (map[string]any, error) {
	// Changed lives on the shared *pflag.Flag, so persistent flags parsed by a
	// cobra subcommand are seen here too; Visit would only see this set's own parse.
	usedFlags := make(map[string]bool)
	fl.fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			usedFlags[f.Name] = true
		}
	})

	flagMap := make(map[string]any)
	f := &fl.f

	addIfUsed(flagMap, usedFlags, "config", f.Config)
	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "quiet", f.Quiet)

	addIfUsed(flagMap, usedFlags, "source", f.Source)
	addIfUsed(flagMap, usedFlags, "replica", f.Replica)
	addIfUsed(flagMap, usedFlags, "hash-algorithm", f.HashAlgorithm)
	addIfUsed(flagMap, usedFlags, "workers", f.Workers)

	addIfUsed(flagMap, usedFlags, "log", f.Log)
	addIfUsed(flagMap, usedFlags, "interval", f.Interval)
	addIfUsed(flagMap, usedFlags, "log-max-size-mb", f.LogMaxSizeMB)
	addIfUsed(flagMap, usedFlags, "log-keep", f.LogKeep)
	addIfUsed(flagMap, usedFlags, "log-compression", f.LogCompression)
	addIfUsed(flagMap, usedFlags, "digest-cache-size", f.DigestCache)
	addIfUsed(flagMap, usedFlags, "digest-cache-ttl", f.DigestCacheTTL)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)
	addIfUsed(flagMap, usedFlags, "watch", f.Watch)
	addIfUsed(flagMap, usedFlags, "watch-debounce-ms", f.WatchDebounce)
	addIfUsed(flagMap, usedFlags, "once", f.Once)
	addIfUsed(flagMap, usedFlags, "force", f.Force)

	addParsedIfUsed(flagMap, usedFlags, "pre-cycle-hooks", f.PreCycleHooks, ParseCmdList)
	addParsedIfUsed(flagMap, usedFlags, "post-cycle-hooks", f.PostCycleHooks, ParseCmdList)

	if err := fl.addPositional(flagMap, args); err != nil {
		return nil, err
	}
	return flagMap, nil
}

func (fl *Flags) addPositional(flagMap map[string]any, args []string) error {
	if len(args) == 0 {
		return nil
	}
	allowed := 0
	switch fl.command {
	case Run, Init:
		allowed = len(PositionalNames)
	case Plan:
		allowed = 2
	}
	if len(args) > allowed {
		return fmt.Errorf("%s accepts at most %d positional arguments, got %d", fl.command, allowed, len(args))
	}

	for i, arg := range args {
		name := PositionalNames[i]
		if _, set := flagMap[name]; set {
			return fmt.Errorf("%s given both as flag --%s and as positional argument", name, name)
		}
		if name == "interval" {
			minutes, err := strconv.Atoi(strings.TrimSpace(arg))
			if err != nil {
				return fmt.Errorf("invalid interval %q: must be a whole number of minutes", arg)
			}
			flagMap[name] = minutes
			continue
		}
		flagMap[name] = arg
	}
	return nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]any, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]any, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

// ParseCmdList parses a comma-separated list of shell-like commands. Single or
// double quotes group an item containing commas; quotes and backslash escapes
// are preserved so the shell can interpret them.
func ParseCmdList(s string) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune

	appendItem := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	var isEscaped bool
	for _, r := range s {
		if isEscaped {
			current.WriteRune(r)
			isEscaped = false
			continue
		}

		switch {
		case r == '\\':
			isEscaped = true
			current.WriteRune(r)
		case r == '\'' || r == '"':
			switch quoteChar {
			case 0:
				quoteChar = r
			case r:
				quoteChar = 0
			}
			current.WriteRune(r)
		case r == ',' && quoteChar == 0:
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem()
	return list
}
