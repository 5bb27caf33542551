package main

import "github.com/Paolafigueroah/system-eco-plataform-sub001/internal/cli"

func main() {
	cli.Execute()
}
