package main

import "github.com/glasspath/communique/cli"

func main() {
	cli.Execute()
}
