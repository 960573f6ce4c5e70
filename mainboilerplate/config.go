package mainboilerplate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// MustParseConfig parses the Parser from an optional INI file named
// |configName|, environment variables, and arguments, in increasing order of
// precedence. The INI file is read from the current directory or, failing
// that, from ~/.config/mapshift. Failures exit the process.
func MustParseConfig(parser *flags.Parser, configName string) {
	if err := parseIniFile(parser, configDirs(), configName); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	MustParseArgs(parser)
}

// parseIniFile parses the first |name| file found among |dirs|, if any.
// Unknown options of the file are ignored.
func parseIniFile(parser *flags.Parser, dirs []string, name string) error {
	var options = parser.Options
	parser.Options |= flags.IgnoreUnknown
	defer func() { parser.Options = options }()

	for _, dir := range dirs {
		var err = flags.NewIniParser(parser).ParseFile(filepath.Join(dir, name))
		if !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func configDirs() []string {
	var out = []string{"."}
	for _, home := range []string{os.Getenv("HOME"), os.Getenv("UserProfile")} {
		if home != "" {
			out = append(out, filepath.Join(home, ".config", "mapshift"))
		}
	}
	return out
}

// MustParseArgs parses and executes the command of process arguments, and
// exits with status 1 if either fails, or 0 if help was requested.
func MustParseArgs(parser *flags.Parser) {
	var _, err = parser.ParseArgs(os.Args[1:])
	if err == nil {
		return
	}

	var flagErr *flags.Error
	if !errors.As(err, &flagErr) {
		os.Exit(1) // The command failed, and logged why.
	}
	switch flagErr.Type {
	case flags.ErrDuplicatedFlag, flags.ErrTag, flags.ErrInvalidTag, flags.ErrShortNameTooLong, flags.ErrMarshal:
		panic(err) // |parser| is misconfigured.
	case flags.ErrHelp:
		if parser.Options&flags.PrintErrors == 0 {
			writeUsage(parser)
		}
		os.Exit(0)
	case flags.ErrCommandRequired:
		writeUsage(parser)
		os.Exit(1)
	default:
		os.Exit(1) // go-flags printed the input error.
	}
}

func writeUsage(parser *flags.Parser) {
	fmt.Fprintln(os.Stderr)
	parser.WriteHelp(os.Stderr)
	fmt.Fprintf(os.Stderr, "\nmapshift %s, built %s.\n", Version, BuildDate)
}

// AddPrintConfigCmd adds a "print-config" command to the Parser, which
// writes the combined configuration to stdout in INI format.
func AddPrintConfigCmd(parser *flags.Parser, configName string) {
	var _, err = parser.AddCommand("print-config", "Print combined configuration and exit", `
Print the configuration combined from `+configName+`, environment variables,
and flags to stdout in INI format, and exit.
`, &printConfig{parser})
	Must(err, "failed to add print-config command")
}

type printConfig struct {
	*flags.Parser `no-flag:"t"`
}

func (p printConfig) Execute([]string) error {
	flags.NewIniParser(p.Parser).Write(os.Stdout,
		flags.IniIncludeComments|flags.IniCommentDefaults|flags.IniIncludeDefaults)
	return nil
}
