package cmd

import (
	"fmt"
)

const banner = `
  _              _                  _____
 | |    ___  __| | __ _  ___ _ __ |  _  \
 | |   / _ \/ _` + "`" + ` |/ _` + "`" + ` |/ _ \ '__|| | | |
 | |__|  __/ (_| | (_| |  __/ |   | |_| |
 |_____\___|\__,_|\__, |\___|_|   |_____/
                  |___/
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Personal Ledger Backend - Version %s\x1b[0m\n\n", Version)
}
