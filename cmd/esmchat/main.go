package main

import "github.com/joho/godotenv"

func main() {
	// Load .env if present; environment overrides beat the config file.
	_ = godotenv.Load()
	Execute()
}
