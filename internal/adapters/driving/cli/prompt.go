package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// isInteractive reports whether stdin is a terminal. Replaced in tests.
var isInteractive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// confirm asks a yes/no question on the command's streams. Without a
// terminal the answer is no, so scripts must pass --yes.
func confirm(cmd *cobra.Command, question string) bool {
	if !isInteractive() {
		return false
	}
	cmd.Print(question + " [y/N]: ")
	return readYes(cmd.InOrStdin())
}

func readYes(r io.Reader) bool {
	line, _ := bufio.NewReader(r).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
