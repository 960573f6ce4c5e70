package mainboilerplate

import "github.com/jessevdk/go-flags"

// AddCommandFunc adds a sub-command under a parent flags.Command.
type AddCommandFunc func(*flags.Command) error

// CommandRegistry collects sub-commands keyed on the dotted path of their
// parent command, allowing commands defined across files to register
// themselves from init functions. The root command has path "".
type CommandRegistry map[string][]AddCommandFunc

// NewCommandRegistry returns an empty CommandRegistry.
func NewCommandRegistry() CommandRegistry {
	return make(CommandRegistry)
}

// AddCommand registers a command under |parentPath|, which separates nested
// command names with periods (eg "level1.level2").
func (cr CommandRegistry) AddCommand(parentPath, command, shortDescription, longDescription string, data interface{}) {
	cr[parentPath] = append(cr[parentPath], func(cmd *flags.Command) error {
		var _, err = cmd.AddCommand(command, shortDescription, longDescription, data)
		return err
	})
}

// AddCommands adds registered commands of |path| under |cmd|, and then
// recursively adds the registered commands of each sub-command of |cmd|.
func (cr CommandRegistry) AddCommands(path string, cmd *flags.Command) error {
	for _, fn := range cr[path] {
		if err := fn(cmd); err != nil {
			return err
		}
	}
	for _, sub := range cmd.Commands() {
		var subPath = sub.Name
		if path != "" {
			subPath = path + "." + sub.Name
		}
		if err := cr.AddCommands(subPath, sub); err != nil {
			return err
		}
	}
	return nil
}
