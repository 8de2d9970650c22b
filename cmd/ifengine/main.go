// Command ifengine boots an Engine, installs a minimal Location/Actor
// schema, and runs the tavern-occupants scenario once as a smoke
// demo before handing off to a pkg/dispatch command loop on stdin/stdout.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aigan/adventure-sub003/internal/engine"
	"github.com/aigan/adventure-sub003/pkg/dispatch"
)

// Version is the single source of truth for the banner and the "version"
// command.
const Version = "0.1.0"

func main() {
	e := engine.New()
	location, actor, locationTT := installTavernSchema(e)
	tavern, occupants := seedTavernScenario(e, location, actor, locationTT)

	fmt.Println("[ifengine] ready v" + Version)
	fmt.Printf("[ifengine] tavern %s has %d occupants:\n", tavern.Sysdesig(e, tavern.OriginState), len(occupants))
	for _, b := range occupants {
		fmt.Println("[ifengine]   " + b.Sysdesig(e, tavern.OriginState))
	}

	d := dispatch.New()
	d.Register("version", func(payload any) (any, error) {
		return Version, nil
	})
	d.Register("occupants", func(payload any) (any, error) {
		labels := make([]string, 0, len(occupants))
		for _, b := range occupants {
			labels = append(labels, b.Sysdesig(e, tavern.OriginState))
		}
		return labels, nil
	})
	d.Register("find", func(payload any) (any, error) {
		label, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("find: payload must be a string label")
		}
		b, ok := e.GetBeliefByLabel(label)
		if !ok {
			return nil, fmt.Errorf("find: no belief known by %q", label)
		}
		return b.Sysdesig(e, tavern.OriginState), nil
	})

	runDispatchLoop(d)
}

// installTavernSchema registers the same Location/Actor/location-trait
// schema internal/engine's tests build with locationSchema, so the demo
// stays grounded in the scenario the engine's own test suite exercises.
func installTavernSchema(e *engine.Engine) (*engine.Archetype, *engine.Archetype, *engine.Traittype) {
	location, err := e.RegisterArchetype("Location", nil, nil)
	if err != nil {
		panic(err)
	}
	locationTT, err := e.RegisterTraittype(&engine.Traittype{Label: "location", DataType: engine.DataSubject})
	if err != nil {
		panic(err)
	}
	actor, err := e.RegisterArchetype("Actor", nil, map[*engine.Traittype]any{locationTT: nil})
	if err != nil {
		panic(err)
	}
	return location, actor, locationTT
}

// seedTavernScenario builds a small tavern world:
// a tavern and an elsewhere location, three actors at the tavern and one
// traveler elsewhere, then locks the state and returns the tavern belief
// plus the occupants rev_trait actually finds.
func seedTavernScenario(e *engine.Engine, location, actor *engine.Archetype, locationTT *engine.Traittype) (*engine.Belief, []*engine.Belief) {
	world := e.NewMind(nil, "world")
	s := world.Current

	tavern, err := e.BeliefFromTemplate(location, s, world, nil)
	if err != nil {
		panic(err)
	}
	if err := s.AddBelief(tavern); err != nil {
		panic(err)
	}
	if err := tavern.SetLabel(e, "The Rusty Anchor"); err != nil {
		panic(err)
	}

	elsewhere, err := e.BeliefFromTemplate(location, s, world, nil)
	if err != nil {
		panic(err)
	}
	if err := s.AddBelief(elsewhere); err != nil {
		panic(err)
	}

	names := []string{"Bartender", "Drunk", "Merchant"}
	for _, name := range names {
		b, err := e.BeliefFromTemplate(actor, s, world, map[*engine.Traittype]any{locationTT: tavern.Subject})
		if err != nil {
			panic(err)
		}
		if err := s.AddBelief(b); err != nil {
			panic(err)
		}
		if err := b.SetLabel(e, name); err != nil {
			panic(err)
		}
	}

	traveler, err := e.BeliefFromTemplate(actor, s, world, map[*engine.Traittype]any{locationTT: elsewhere.Subject})
	if err != nil {
		panic(err)
	}
	if err := s.AddBelief(traveler); err != nil {
		panic(err)
	}
	if err := traveler.SetLabel(e, "Traveler"); err != nil {
		panic(err)
	}

	s.Lock()

	var occupants []*engine.Belief
	for b := range tavern.RevTrait(e, s, locationTT) {
		occupants = append(occupants, b)
	}
	return tavern, occupants
}

// runDispatchLoop reads newline-delimited dispatch.Message JSON frames from
// stdin and writes their dispatch.Ack responses to stdout, so any host
// process can drive the engine over plain pipes.
func runDispatchLoop(d *dispatch.Dispatcher) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		reply, err := d.HandleJSON(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "[ifengine] "+err.Error())
			continue
		}
		if reply == nil {
			continue
		}
		var ack dispatch.Ack
		if err := json.Unmarshal(reply, &ack); err != nil {
			continue
		}
		fmt.Println(string(reply))
	}
}
