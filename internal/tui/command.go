package tui

import "strings"

// Command is one parsed command-bar entry.
type Command struct {
	Name string
	Args string
}

// ParseCommand splits a command-bar entry into its lowercase name and the
// argument rest. A leading ':' is tolerated so pasted entries still parse.
func ParseCommand(input string) Command {
	input = strings.TrimPrefix(strings.TrimSpace(input), ":")
	name, args, _ := strings.Cut(strings.TrimSpace(input), " ")
	return Command{
		Name: strings.ToLower(name),
		Args: strings.TrimSpace(args),
	}
}
