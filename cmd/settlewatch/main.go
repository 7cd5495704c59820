// settlewatch reports files under a directory once they have finished changing.
package main

import (
	"os"

	"github.com/ZanzyTHEbar/settlewatch/settle/cli"
)

func main() {
	os.Exit(cli.Execute())
}
