package main

import (
	"fmt"
	"os/user"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/yahallo-auth/yahallo/internal/bus"
	"github.com/yahallo-auth/yahallo/internal/domain"
)

var (
	checkUser       string
	checkSessionBus bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Ask the daemon to authenticate a user",
	Long: `Calls CheckMatch on the running daemon, prints the result and exits
non-zero unless the result is Success.`,
	Args: cobra.NoArgs,
	// only the bus is needed, not the local config
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkUser, "user", "u", "", "User to authenticate (default: current user)")
	checkCmd.Flags().BoolVar(&checkSessionBus, "session-bus", false, "Use the session bus instead of the system bus")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	username := checkUser
	if username == "" {
		u, err := user.Current()
		if err != nil {
			return fmt.Errorf("current user: %w", err)
		}
		username = u.Username
	}

	connect := dbus.ConnectSystemBus
	if checkSessionBus {
		connect = dbus.ConnectSessionBus
	}
	conn, err := connect()
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer func() { _ = conn.Close() }()

	result, err := bus.NewClient(conn).CheckMatch(cmd.Context(), username)
	if err != nil {
		return err
	}

	fmt.Println(result)
	if err := domain.ParseResult(result); err != nil {
		return fmt.Errorf("authentication denied for %s", username)
	}
	return nil
}
