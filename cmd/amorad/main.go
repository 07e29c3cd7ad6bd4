package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/amora-chat/amora/internal/daemon"
	"github.com/amora-chat/amora/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			ProfileName: profileName,
			SocketPath:  profile.SocketPath(profileName),
		}),
	)

	app.Run()
}
