package main

import "github.com/KaramelBytes/dedupe-cli/cmd"

func main() {
	cmd.Execute()
}
