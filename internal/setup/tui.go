// Package setup is the interactive first-run wizard. It asks for the
// handful of values that have no sane default and writes a config file the
// rest of the system loads on the next start.
package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// RunTUI launches the terminal configuration wizard.
func RunTUI() error {
	var (
		platform   string
		apiKey     string
		secret     string
		quoteAsset string
		baseToken  string
		walletsStr string
		addr       string
		entryValue string
		sweepADest string
		sweepBDest string
		confirm    bool
	)

	// defaults
	quoteAsset = "USDC"
	baseToken = "BTC"
	addr = ":8077"
	entryValue = "1000"

	// step 1: venue
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("MIRRA CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's wire up your portfolio mirror.\n"))

	fmt.Println(stepStyle.Render("STEP 1: VENUE"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Execution Venue").
				Options(
					huh.NewOption("Paper (simulated wallet)", "paper"),
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit", "bybit"),
					huh.NewOption("Hyperliquid", "hyperliquid"),
				).
				Value(&platform),
		),
	).Run()
	if err != nil {
		return err
	}

	if platform != "paper" {
		fmt.Print("\033[H\033[2J")
		fmt.Println(headerStyle.Render("MIRRA CONFIG WIZARD"))
		fmt.Println(stepStyle.Render("STEP 2: API CREDENTIALS"))
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("API Key").
					Value(&apiKey).
					Validate(required("api key")),
				huh.NewInput().
					Title("API Secret").
					Value(&secret).
					EchoMode(huh.EchoModePassword).
					Validate(required("api secret")),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// step 3: assets
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("MIRRA CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: ASSETS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Stable Quote Asset").
				Description("Orders are quoted in this asset (e.g. USDC)").
				Value(&quoteAsset).
				Validate(required("quote asset")),
			huh.NewInput().
				Title("Base Reserve Token").
				Description("The volatile reserve asset (e.g. BTC)").
				Value(&baseToken).
				Validate(required("base token")),
			huh.NewInput().
				Title("Mirror Entry Value").
				Description("Quote value of a fresh full-size mirror entry").
				Value(&entryValue).
				Validate(validatePositiveDecimal),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 4: watched wallets
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("MIRRA CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: WATCHED WALLETS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Wallet Addresses").
				Description("Comma-separated hex addresses to mirror").
				Value(&walletsStr).
				Validate(validateWallets),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 5: harvest sweeps
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("MIRRA CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 5: HARVEST SWEEPS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Sweep Destination A").
				Description("Receives 25% of each harvest").
				Value(&sweepADest).
				Validate(validateAddress),
			huh.NewInput().
				Title("Sweep Destination B").
				Description("Receives 15% of each harvest").
				Value(&sweepBDest).
				Validate(validateAddress),
			huh.NewInput().
				Title("API Listen Address").
				Value(&addr),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("MIRRA CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Venue: %s\nQuote: %s\nBase: %s\nWallets: %s\nSweep A: %s\nSweep B: %s\nListen: %s\n",
		platform, quoteAsset, baseToken, walletsStr, sweepADest, sweepBDest, addr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	doc := map[string]any{
		"venue": map[string]any{
			"platform":    platform,
			"api_key":     apiKey,
			"secret":      secret,
			"quote_asset": quoteAsset,
		},
		"server": map[string]any{
			"addr": addr,
		},
		"ingest": map[string]any{
			"wallets": splitWallets(walletsStr),
		},
		"mirror": map[string]any{
			"entry_value": entryValue,
			"excluded":    []string{baseToken, quoteAsset},
		},
		"harvest": map[string]any{
			"sweep_a_dest": sweepADest,
			"sweep_b_dest": sweepBDest,
		},
		"base_token":  baseToken,
		"base_symbol": baseToken + quoteAsset,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		return nil
	}
}

func validatePositiveDecimal(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func validateAddress(s string) error {
	if !common.IsHexAddress(strings.TrimSpace(s)) {
		return fmt.Errorf("not a valid hex address")
	}
	return nil
}

func validateWallets(s string) error {
	wallets := splitWallets(s)
	if len(wallets) == 0 {
		return fmt.Errorf("at least one wallet address is required")
	}
	for _, w := range wallets {
		if !common.IsHexAddress(w) {
			return fmt.Errorf("invalid address %q", w)
		}
	}
	return nil
}

func splitWallets(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if w := strings.TrimSpace(part); w != "" {
			out = append(out, w)
		}
	}
	return out
}
