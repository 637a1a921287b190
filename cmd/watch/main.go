package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	themeFlag := flag.String("theme", "", "UI theme (cyan, matrix, amber)")
	listThemes := flag.Bool("list-themes", false, "List all available themes")
	dispatcherFlag := flag.String("dispatcher", "", "Base URL of the dispatcher API")
	flag.Parse()

	if *listThemes {
		fmt.Println("Available themes:")
		for _, theme := range ListThemes() {
			fmt.Printf("  - %s\n", theme)
		}
		os.Exit(0)
	}

	selectedTheme := *themeFlag
	if selectedTheme == "" {
		selectedTheme = os.Getenv("TESTHERD_THEME")
	}

	baseURL := *dispatcherFlag
	if baseURL == "" {
		baseURL = os.Getenv("TESTHERD_DISPATCHER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8888"
	}

	p := tea.NewProgram(initialModel(ThemeName(selectedTheme), baseURL), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("failed to run watch UI: %v\n", err)
		os.Exit(1)
	}
}
