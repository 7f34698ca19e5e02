package main

import "github.com/Zhima-Mochi/libraryhold/internal/presentation/cli"

func main() {
	cli.Execute()
}
