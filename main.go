package main

import "github.com/MeKo-Tech/tilebank/internal/cmd"

func main() {
	cmd.Execute()
}
