// Command pmpgw-validate loads a gateway configuration file, validates it,
// and prints a summary: client and route counts, per-kind client
// breakdown, and warnings for unused clients. Exit code 0 on valid
// configuration, 1 otherwise.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/relabs-tech/pmpgw/core/config"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: pmpgw-validate <config.yaml>")
		os.Exit(1)
	}
	path := os.Args[1]

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %s\n", err)
		os.Exit(1)
	}

	fmt.Printf("clients: %d\n", len(cfg.Clients))
	fmt.Printf("routes: %d\n", len(cfg.Routes))

	breakdown := cfg.ClientBreakdown()
	kinds := make([]string, 0, len(breakdown))
	for k := range breakdown {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	fmt.Println("client breakdown:")
	for _, k := range kinds {
		fmt.Printf("  %s: %d\n", k, breakdown[k])
	}

	unused := cfg.UnusedClients()
	sort.Strings(unused)
	for _, id := range unused {
		fmt.Printf("warning: client %q is configured but never referenced by a route\n", id)
	}

	fmt.Println("configuration valid")
	os.Exit(0)
}
