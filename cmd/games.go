package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/inference-sim/vecenv/sim"
	"github.com/inference-sim/vecenv/sim/arcade"
)

// listGames writes one line per registered kind with its action set.
func listGames(w io.Writer) error {
	for _, kind := range sim.EnvironmentKinds() {
		env, err := sim.NewEnvironment(sim.EnvConfig{Kind: kind, Grayscale: true})
		if err != nil {
			return err
		}
		actions := env.ActionSet()
		lives := env.Lives()
		if err := env.Close(); err != nil {
			return err
		}
		names := make([]string, len(actions))
		for i, a := range actions {
			names[i] = fmt.Sprintf("%d:%s", a, arcade.ActionName(a))
		}
		if _, err := fmt.Fprintf(w, "%-10s lives=%d actions=[%s]\n", kind, lives, strings.Join(names, " ")); err != nil {
			return err
		}
	}
	return nil
}
