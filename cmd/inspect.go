package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firasghr/uaemulate/client"
	"github.com/firasghr/uaemulate/emulate"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [url]",
	Short: "Print the emulated headers of a request without sending it",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	addRequestFlags(inspectCmd)
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	db, err := loadDatabase()
	if err != nil {
		return err
	}
	req, profile, err := buildRequest(cmd, db, args[0])
	if err != nil {
		return err
	}

	engine := emulate.Engine{Log: log}
	out, err := engine.EmulateRequest(req, profile)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %s %s\n", out.Method, out.URL.RequestURI(), out.Proto)
	if h, ok := client.OrderedHeaderFromContext(out.Context()); ok {
		printOrderedHeader(w, h)
	} else {
		fmt.Fprintln(w, "# no template for this request, headers pass through")
		printHeader(w, out.Header)
	}
	fmt.Fprintln(w)
	params, _ := client.ConnectParamsFromContext(out.Context())
	printConnectParams(w, params)
	return nil
}
