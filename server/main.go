// server/main.go
package main

import (
	"log"
	"net/http"
	"time"

	"github.com/rexlx/blogicum/blog"
)

func main() {
	cfg, err := blog.LoadConfig()
	if err != nil {
		log.Fatalf("Could not load configuration: %v", err)
	}

	// Initialize the database connection.
	blogDB, err := blog.NewDatabase(cfg.DatabaseURL, cfg.MaxConns)
	if err != nil {
		log.Fatalf("Could not initialize database: %v", err)
	}
	defer blogDB.Close()
	log.Println("Successfully connected to the database.")
	if err := blogDB.CreateTables(); err != nil {
		log.Fatalf("Could not create tables: %v", err)
	}

	// Create the blog handler, injecting the database dependency.
	blogHandler, err := blog.NewHandlers(blogDB, cfg)
	if err != nil {
		log.Fatalf("Could not create blog handler: %v", err)
	}

	mux := http.NewServeMux()
	blogHandler.RegisterRoutes(mux)

	log.Printf("Starting blog server on %s", cfg.Addr)
	svr := &http.Server{
		Addr:              cfg.Addr,
		Handler:           blogHandler.Session.LoadAndSave(blogHandler.CSRF(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := svr.ListenAndServe(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
