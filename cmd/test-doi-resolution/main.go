// Manual check that every DOI cited by the axiom templates resolves live.
// Needs network access to doi.org and api.crossref.org.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/bluebridge/internal/axiom"
	"github.com/ppiankov/bluebridge/internal/doi"
	"github.com/ppiankov/bluebridge/internal/logging"
	"github.com/ppiankov/bluebridge/internal/model"
)

func main() {
	fmt.Println("=== Axiom DOI Resolution Test ===")
	fmt.Println()

	cfg := model.DefaultConfig()
	if len(os.Args) > 1 {
		cfg.Registry.TemplatePath = os.Args[1]
	}
	cfg.DOI.LiveResolution = true
	cfg.DOI.Timeout = 5 * time.Second

	logger, err := logging.New("warn", false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	registry, err := axiom.Load(cfg.Registry, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load axioms: %v\n", err)
		os.Exit(1)
	}

	verifier := doi.NewVerifier(cfg.DOI, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	failed := 0
	for _, a := range registry.All() {
		dois := a.DOIs()
		fmt.Printf("%s  %s\n", a.ID, a.Name)
		fmt.Println(strings.Repeat("-", 60))
		if len(dois) == 0 {
			fmt.Println("  ⚠️  no DOIs cited")
			fmt.Println()
			continue
		}

		for _, res := range verifier.VerifyAll(ctx, dois) {
			switch res.Status {
			case doi.StatusVerified:
				fmt.Printf("  ✓ %s (%s)\n", res.Normalized, res.Resolver)
				if res.Title != "" {
					fmt.Printf("    %s", res.Title)
					if res.Year > 0 {
						fmt.Printf(" (%d)", res.Year)
					}
					fmt.Println()
				}
			default:
				failed++
				fmt.Printf("  ✗ %s: %s", res.DOI, res.Status)
				if res.Reason != "" {
					fmt.Printf(" (%s)", res.Reason)
				}
				fmt.Println()
			}
		}
		fmt.Println()
	}

	fmt.Println("=== Test Complete ===")
	if failed > 0 {
		fmt.Printf("%d DOI(s) did not verify\n", failed)
		os.Exit(1)
	}
}
