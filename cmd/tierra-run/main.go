// This project is licensed under the MIT License (see LICENSE).

// Command tierra-run boots a small self-replicating ancestor into a
// fresh soup and drives the tick loop for a fixed instruction budget,
// printing a status line periodically. Argument parsing, genome-file
// loading, and config-file loading are out of scope for this engine
// (spec.md §1) and belong to an external collaborator, so this driver
// hardcodes a tiny built-in ancestor and the "default" preset.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"tierra"
	"tierra/config"
	"tierra/opcode"
)

// instructionBudget bounds how long this demonstration driver runs
// before exiting, regardless of population state.
const instructionBudget = 2_000_000

// ancestor is a minimal self-replicating genome: it templates its own
// extent with a nop0/nop1 marker pair, mal's a same-size daughter,
// copies itself byte by byte with movii/inc_a/inc_b, then divides.
// It exists purely so this driver has something to boot; it is not
// meant to be a competitive creature.
func ancestor() []byte {
	mn := func(names ...string) []byte {
		out := make([]byte, len(names))
		for i, n := range names {
			op, ok := opcode.Lookup(n)
			if !ok {
				panic("tierra-run: unknown mnemonic " + n)
			}
			out[i] = byte(op)
		}
		return out
	}
	return mn(
		"zero", "incC", "incC", "incC", "incC", "incC", "incC", "incC", "incC", "incC", "incC", "incC", "incC",
		"mal",
		"movBA",
		"adrf", "nop0", "nop1",
		"movii", "incA", "incB",
		"subCAB",
		"ifz",
		"jmpb", "nop1", "nop0",
		"divide",
		"nop0", "nop1",
	)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := config.Default()
	sim, err := tierra.NewSimulation(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tierra-run: config:", err)
		os.Exit(1)
	}

	genome := ancestor()
	if err := sim.Boot(genome, 0, true); err != nil {
		fmt.Fprintln(os.Stderr, "tierra-run: boot:", err)
		os.Exit(1)
	}

	sim.Subscribe(tierra.Milestone, func(ev tierra.Event) {
		logger.Info("milestone", "instruction", ev.InstructionCount)
	})

	ctx := context.Background()
	if err := sim.RunFor(ctx, instructionBudget); err != nil {
		fmt.Fprintln(os.Stderr, sim.Report())
		fmt.Fprintln(os.Stderr, "tierra-run:", err)
		os.Exit(1)
	}
	fmt.Println(sim.Report())
}
