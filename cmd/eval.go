package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/firasghr/uaemulate/jsruntime"
)

var evalCmd = &cobra.Command{
	Use:   "eval [script | @file]",
	Short: "Evaluate JavaScript in a sandbox seeded with a profile's navigator and screen",
	Args:  cobra.ExactArgs(1),
	RunE:  runEval,
}

func init() {
	evalCmd.Flags().String("profile", "", "Profile name (first profile if omitted)")
	evalCmd.Flags().String("cookie", "", "Initial document.cookie")
	evalCmd.Flags().Duration("timeout", 5*time.Second, "Abort the script after this long")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	script := args[0]
	if path, ok := strings.CutPrefix(script, "@"); ok {
		data, err := os.ReadFile(path) // #nosec G304 – operator-supplied script path
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		script = string(data)
	}

	db, err := loadDatabase()
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("profile")
	profile, err := profileByName(db, name)
	if err != nil {
		return err
	}
	sb, err := jsruntime.NewSandbox(profile, nil)
	if err != nil {
		return err
	}
	if cookie, _ := cmd.Flags().GetString("cookie"); cookie != "" {
		if err := sb.SetCookie(cookie); err != nil {
			return err
		}
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	result, err := sb.Eval(ctx, script)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, result)
	if cookie, err := sb.Cookie(); err == nil && cookie != "" {
		fmt.Fprintf(w, "document.cookie: %s\n", cookie)
	}
	return nil
}
