package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"spaceexplorers/internal/game"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240")).
			MarginTop(1)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func printTitle(title string) {
	fmt.Println(titleStyle.Render(strings.ToUpper(title)))
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// promptPassword falls back to a visible prompt when stdin is not a terminal.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptInt64(label string, min, max int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		if max > 0 && v > max {
			printWarn(fmt.Sprintf("Value must be <= %d", max))
			continue
		}
		return v, nil
	}
}

func renderProfile(u game.User) {
	printTitle("Pilot")
	fmt.Printf("Username:  %s\n", u.Username)
	fmt.Printf("Fuel:      %s\n", comma(u.Points))
	fmt.Printf("User ID:   %s\n", mutedStyle.Render(u.ID))
	fmt.Println()
}

func renderJourney(j game.Journey) {
	printTitle("Journey")
	fmt.Printf("Pilot:     %s\n", j.User.Username)
	fmt.Printf("Fuel:      %s\n", comma(j.User.Fuel))
	fmt.Printf("Explored:  %s planets\n", j.DiscoveryProgress)

	fmt.Println()
	accent.Println("Discovered")
	if len(j.DiscoveredPlanets) == 0 {
		printInfo("No planets discovered yet.")
	} else {
		fmt.Printf("%-4s %-20s %-10s %10s  %s\n", "ID", "PLANET", "RARITY", "REWARD", "WHEN")
		for _, p := range j.DiscoveredPlanets {
			fmt.Printf("%-4d %-20s %-10s %10s  %s\n",
				p.ID,
				truncate(p.Name, 20),
				p.Rarity,
				comma(p.DiscoveryReward),
				p.DiscoveredAt.Local().Format("2006-01-02 15:04"),
			)
		}
	}

	fmt.Println()
	if j.NextPlanet == nil {
		printSuccess("Every planet has been charted.")
		fmt.Println()
		return
	}
	next := j.NextPlanet
	accent.Printf("Next: %s (#%d)\n", next.Name, next.ID)
	fmt.Printf("%s\n", mutedStyle.Render(next.Description))
	fmt.Printf("Fuel required: %s  Reward: %s\n", comma(next.FuelRequired), comma(next.DiscoveryReward))
	if j.CanDiscoverNext {
		printSuccess(fmt.Sprintf("Ready for launch. Run `xpl discover %d`.", next.ID))
	} else {
		printWarn(fmt.Sprintf("Need %s more fuel.", comma(next.FuelRequired-j.User.Fuel)))
	}
	fmt.Println()
}

func renderShop(items []game.ShopItem) {
	printTitle("Shop")
	if len(items) == 0 {
		printInfo("No upgrades in this category.")
		return
	}
	fmt.Printf("%-4s %-22s %-9s %8s %6s  %-10s\n", "ID", "UPGRADE", "CATEGORY", "PRICE", "MULT", "STATUS")
	for _, it := range items {
		status := success.Sprint("available")
		switch {
		case it.IsOwned:
			status = neutral.Sprint("owned")
		case it.IsLocked:
			status = danger.Sprint("locked " + it.UnlockProgress)
		}
		fmt.Printf("%-4d %-22s %-9s %8s %6s  %s\n",
			it.ID,
			truncate(it.Name, 22),
			it.Category,
			comma(it.Price),
			it.PointsMultiplier.StringFixed(2)+"x",
			status,
		)
	}
	fmt.Println()
}

func renderSpacecraft(s game.Spacecraft) {
	printTitle("Spacecraft")
	fmt.Printf("Upgrades:   %d (%d equipped)\n", s.TotalUpgrades, s.EquippedCount)
	fmt.Printf("Multiplier: %s\n", accent.Sprint(s.PointsMultiplier))
	if s.TotalUpgrades == 0 {
		printInfo("Hangar is empty. Visit `xpl shop`.")
		fmt.Println()
		return
	}
	categories := make([]string, 0, len(s.Upgrades))
	for c := range s.Upgrades {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Println()
		accent.Println(strings.ToUpper(c[:1]) + c[1:])
		for _, u := range s.Upgrades[c] {
			mark := mutedStyle.Render("[ ]")
			if u.IsEquipped {
				mark = success.Sprint("[x]")
			}
			fmt.Printf("%s %-4d %-22s %6s\n", mark, u.ID, truncate(u.Name, 22), u.PointsMultiplier.StringFixed(2)+"x")
		}
	}
	fmt.Println()
}

func renderAchievements(b game.AchievementBoard) {
	printTitle("Achievements " + b.Completion)
	for _, a := range b.Achievements {
		if a.IsEarned {
			fmt.Printf("%s %-22s %s\n", success.Sprint("*"), truncate(a.Name, 22), mutedStyle.Render(a.Description))
			continue
		}
		fmt.Printf("%s %-22s %s\n", neutral.Sprint("-"), truncate(a.Name, 22), mutedStyle.Render(a.Description))
	}
	fmt.Printf("\nEarned %d of %d.\n\n", b.EarnedCount, b.TotalCount)
}

func renderChallenges(views []game.ChallengeView, selfID string) {
	printTitle("Challenges")
	if len(views) == 0 {
		printInfo("No challenges yet.")
		return
	}
	fmt.Printf("%-5s %-44s %6s %6s  %s\n", "ID", "DESCRIPTION", "POINTS", "DONE", "OWNER")
	for _, v := range views {
		owner := "seed"
		switch {
		case v.CreatorID == "":
		case v.CreatorID == selfID:
			owner = "you"
		default:
			owner = "pilot"
		}
		fmt.Printf("%-5d %-44s %6d %6d  %s\n", v.ID, truncate(v.Description, 44), v.Points, v.CompletionCount, owner)
	}
	fmt.Println()
}

func renderCompletions(rows []game.Completion) {
	printTitle("Completions")
	if len(rows) == 0 {
		printInfo("No completions yet.")
		return
	}
	for _, c := range rows {
		who := c.Username
		if who == "" {
			who = truncate(c.UserID, 12)
		}
		fmt.Printf("%-18s %s  %s\n", truncate(who, 18), c.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(c.Details, 48))
	}
	fmt.Println()
}

func renderLeaderboard(rows []game.LeaderboardRow, selfID string) {
	printTitle("Leaderboard")
	if len(rows) == 0 {
		printInfo("No leaderboard rows yet.")
		return
	}
	fmt.Printf("%-6s %-22s %12s\n", "RANK", "PILOT", "FUEL")
	for _, row := range rows {
		line := fmt.Sprintf("%-6d %-22s %12s", row.Rank, truncate(row.Username, 22), comma(row.Points))
		if row.UserID == selfID {
			accent.Println(line)
			continue
		}
		fmt.Println(line)
	}
	fmt.Println()
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
