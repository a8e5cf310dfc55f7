package main

import (
	"log"

	"github.com/joho/godotenv"

	"roomchat/internal/config"
	"roomchat/internal/devserver"
)

func main() {
	log.Println("Starting roomchat dev server...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	srv, err := devserver.New(config.LoadServer())
	if err != nil {
		log.Fatalf("Failed to start dev server: %v", err)
	}
	log.Fatal(srv.Run())
}
