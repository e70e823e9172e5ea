// Command manifestcheck validates a component manifest at build time
// (SPEC_FULL.md §2 item 13), before it is embedded into the root-task
// binary: the exact same internal/manifest.Parse the root task itself
// runs at boot, run host-side so a malformed manifest fails CI instead of
// a boot.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/darmie/kaal/internal/manifest"
)

func main() {
	path := flag.String("manifest", "", "path to the component manifest YAML file")
	verbose := flag.Bool("v", false, "log each component as it validates")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *path == "" {
		fmt.Fprintln(os.Stderr, "manifestcheck: -manifest is required")
		os.Exit(2)
	}

	raw, err := os.ReadFile(*path)
	if err != nil {
		log.WithError(err).Fatal("manifestcheck: read manifest")
	}

	m, err := manifest.Parse(raw)
	if err != nil {
		log.WithError(err).Fatal("manifestcheck: invalid manifest")
	}

	roots := m.RootsOf()
	if len(roots) == 0 {
		log.Fatal("manifestcheck: manifest has no autostart component spawned_by root")
	}

	for _, c := range m.Components {
		entry := log.WithFields(logrus.Fields{
			"component":  c.Name,
			"type":       c.Type,
			"spawned_by": c.SpawnedBy,
		})
		for _, raw := range c.Capabilities {
			if _, err := manifest.ParseCapability(raw); err != nil {
				entry.WithError(err).Fatal("manifestcheck: invalid capability")
			}
		}
		entry.Debug("manifestcheck: component ok")
	}

	fmt.Printf("manifestcheck: %s: %d components, %d autostart root(s)\n", *path, len(m.Components), len(roots))
}
