package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var addCmd = &cobra.Command{
	Use:   "add <city>",
	Short: "Fetch a city's forecast and add it to the tracked list",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked cities",
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <city>",
	Short: "Remove every entry for a city",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "Switch between Celsius and Fahrenheit",
	RunE:  runUnits,
}

var listForecast bool

func init() {
	listCmd.Flags().BoolVar(&listForecast, "forecast", false, "Show daily averages when available")
	rootCmd.AddCommand(addCmd, listCmd, deleteCmd, unitsCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	city := strings.Join(args, " ")
	summary, added, err := a.service.Search(cmd.Context(), city)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", city, err)
	}
	if !added {
		fmt.Printf("No forecast data for %s\n", city)
		return nil
	}

	fmt.Printf("Added %s: %s, %s\n", summary.CityName, summary.TemperatureDisplay, summary.Condition)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.service.List(cmd.Context())
	if err != nil {
		return err
	}

	if len(st.Cities) == 0 {
		fmt.Println("No cities added.")
		return nil
	}

	title := cases.Title(language.English)

	fmt.Println("----------------------------------------------------------")
	fmt.Printf("%-20s  %10s  %-16s  %s\n", "City", "Temp", "Conditions", "Fetched")
	fmt.Println("----------------------------------------------------------")
	for _, c := range st.Cities {
		fmt.Printf("%-20s  %10s  %-16s  %s\n", c.CityName, c.TemperatureDisplay, title.String(c.Condition), c.FetchedDate)
		if listForecast {
			for _, d := range c.Forecast {
				fmt.Printf("    %s  %6.1f %s\n", d.Date, d.MeanTemperature, st.Units.Glyph())
			}
		}
	}
	fmt.Println("----------------------------------------------------------")
	fmt.Printf("%d cities, units: %s\n", len(st.Cities), st.Units)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	city := strings.Join(args, " ")
	n, err := a.service.Delete(cmd.Context(), city)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d entries for %s\n", n, city)
	return nil
}

func runUnits(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	units, skipped, err := a.service.SwitchUnits(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Units switched to %s\n", units)
	for _, e := range skipped {
		fmt.Printf("  skipped: %v\n", e)
	}
	return nil
}
