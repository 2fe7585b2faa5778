// uaemulate rewrites HTTP requests so that their headers, header order and
// connection settings match those of a real browser.
//
// Subcommands:
//   - serve    run the emulating forward proxy
//   - inspect  print the emulated form of a request
//   - fetch    send one emulated request
//   - eval     run JavaScript against a profile's navigator and screen
package main

import "github.com/firasghr/uaemulate/cmd"

func main() {
	cmd.Execute()
}
