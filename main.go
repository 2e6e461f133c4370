package main

import (
	"log"

	"theater-site/cmd"
	_ "theater-site/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
