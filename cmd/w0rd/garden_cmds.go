package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"w0rd/internal/store"
)

var plantGardenerID string

var plantCmd = &cobra.Command{
	Use:   "plant <wish>",
	Short: "Plant a wish into the garden",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPlant,
}

var pulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Take the organism's pulse and print the report",
	RunE:  runPulse,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the garden's vital signs",
	RunE:  runStatus,
}

func init() {
	plantCmd.Flags().StringVar(&plantGardenerID, "gardener", "", "gardener profile id")
}

func runPlant(cmd *cobra.Command, args []string) error {
	g, err := openGarden()
	if err != nil {
		return err
	}
	defer g.close()

	ctx := context.Background()
	wish := strings.Join(args, " ")

	seed, sprouts, err := g.org.Plant(ctx, wish, plantGardenerID)
	if err != nil {
		return err
	}

	fmt.Printf("Planted seed %s\n", seed.ID)
	fmt.Printf("  essence:  %s\n", seed.DisplayEssence())
	fmt.Printf("  themes:   %s\n", strings.Join(seed.Themes, ", "))
	fmt.Printf("  energy:   %.1f\n", seed.Energy)
	fmt.Printf("  sprouts:  %d\n", len(sprouts))
	for _, sp := range sprouts {
		indent := sp.Depth - 1
		if indent < 0 {
			indent = 0
		}
		fmt.Printf("    %s%s\n", strings.Repeat("  ", indent), sp.Label)
	}
	return nil
}

func runPulse(cmd *cobra.Command, args []string) error {
	g, err := openGarden()
	if err != nil {
		return err
	}
	defer g.close()

	report, err := g.org.Pulse.Pulse(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Pulse %d\n", report.Cycle)
	fmt.Println(report.Summary)
	printList := func(label string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Printf("  %s: %s\n", label, strings.Join(items, ", "))
	}
	printList("thriving", report.Thriving)
	printList("struggling", report.Struggling)
	printList("healing", report.Healing)
	printList("dreaming", report.Dreaming)
	printList("emergent", report.Emergent)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	g, err := openGarden()
	if err != nil {
		return err
	}
	defer g.close()

	ctx := context.Background()
	state, err := g.store.GardenState(ctx)
	if err != nil {
		return err
	}
	seedCounts, err := g.store.CountSeeds(ctx)
	if err != nil {
		return err
	}
	dreamTotal, dreamPlanted, err := g.store.CountDreams(ctx)
	if err != nil {
		return err
	}
	woundTotal, _, err := g.store.CountWounds(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Season:        %s (cycle %d)\n", state.Season, state.CycleCount)
	fmt.Printf("Energy:        %.1f\n", state.TotalEnergy)
	fmt.Printf("Vitality:      %.2f\n", state.Vitality)
	fmt.Printf("Wisdom:        %.2f\n", state.WisdomScore)
	fmt.Printf("Antifragility: %.2f\n", state.AntifragilityScore)
	fmt.Printf("Seeds:         %d total, %d planted, %d growing, %d harvested, %d composted\n",
		seedCounts["total"], seedCounts[store.SeedPlanted],
		seedCounts[store.SeedGrowing], seedCounts[store.SeedHarvested],
		seedCounts[store.SeedComposted])
	fmt.Printf("Dreams:        %d dreamt, %d planted\n", dreamTotal, dreamPlanted)
	fmt.Printf("Wounds:        %d recorded\n", woundTotal)
	return nil
}
