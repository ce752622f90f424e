package main

import "github.com/open-feature/flagx/cmd"

func main() {
	cmd.Execute()
}
