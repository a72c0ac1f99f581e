package ui

import "strings"

const (
	reset       = "\033[0m"
	bold        = "\033[1m"
	beeYellow   = "\033[38;5;226m"
	honeyOrange = "\033[38;5;214m"
	mint        = "\033[38;5;121m"
	seafoam     = "\033[38;5;49m"
	cobalt      = "\033[38;5;33m"
	deepIndigo  = "\033[38;5;61m"
	fuchsia     = "\033[38;5;177m"
	statsFlame  = "\033[38;5;208m"
)

var glyphs = map[rune][]string{
	'T': {"████████╗", "╚══██╔══╝", "   ██║   ", "   ██║   ", "   ██║   ", "   ╚═╝   "},
	'A': {" █████╗ ", "██╔══██╗", "███████║", "██╔══██║", "██║  ██║", "╚═╝  ╚═╝"},
	'S': {"███████╗", "██╔════╝", "███████╗", "╚════██║", "███████║", "╚══════╝"},
	'K': {"██╗  ██╗", "██║ ██╔╝", "█████╔╝ ", "██╔═██╗ ", "██║  ██╗", "╚═╝  ╚═╝"},
}

var gradient = []string{statsFlame, honeyOrange, beeYellow, mint, seafoam, cobalt, deepIndigo, fuchsia}

// Wordmark renders word in block letters, one gradient color per letter.
// Letters without a glyph are skipped.
func Wordmark(word string) []string {
	rows := make([]string, 6)
	i := 0
	for _, r := range strings.ToUpper(word) {
		letter, ok := glyphs[r]
		if !ok {
			continue
		}
		color := gradient[i%len(gradient)]
		for row := range letter {
			rows[row] += color + letter[row] + " "
		}
		i++
	}
	return rows
}

// Banner renders a colored taskstats wordmark.
func Banner() string {
	var b strings.Builder
	for _, line := range Wordmark("taskstats") {
		b.WriteString(bold + line + reset + "\n")
	}

	b.WriteString("\n")
	b.WriteString(bold + statsFlame + "taskstats" + reset + "  •  per-task delay accounting\n\n")

	return b.String()
}
