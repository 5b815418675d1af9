// Admin tool for the records authors pick from but cannot create:
//
//	manage category -slug travel -title Travel [-description ...] [-published=false]
//	manage location -name Moscow [-published=false]
//	manage categories
//	manage locations
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/rexlx/blogicum/blog"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cfg, err := blog.LoadConfig()
	if err != nil {
		log.Fatalf("Could not load configuration: %v", err)
	}
	db, err := blog.NewDatabase(cfg.DatabaseURL, 1)
	if err != nil {
		log.Fatalf("Could not initialize database: %v", err)
	}
	defer db.Close()
	if err := db.CreateTables(); err != nil {
		log.Fatalf("Could not create tables: %v", err)
	}

	ctx := context.Background()
	switch os.Args[1] {
	case "category":
		err = createCategory(ctx, db, os.Args[2:])
	case "location":
		err = createLocation(ctx, db, os.Args[2:])
	case "categories":
		err = listCategories(ctx, db)
	case "locations":
		err = listLocations(ctx, db)
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: manage category|location|categories|locations [flags]")
	os.Exit(2)
}

func createCategory(ctx context.Context, db *blog.Database, args []string) error {
	fs := flag.NewFlagSet("category", flag.ExitOnError)
	var c blog.Category
	fs.StringVar(&c.Slug, "slug", "", "unique url identifier (required)")
	fs.StringVar(&c.Title, "title", "", "category title (required)")
	fs.StringVar(&c.Description, "description", "", "category description")
	fs.BoolVar(&c.IsPublished, "published", true, "show the category and its posts")
	fs.Parse(args)
	if c.Slug == "" || c.Title == "" {
		fs.Usage()
		os.Exit(2)
	}
	if err := db.CreateCategory(ctx, &c); err != nil {
		return err
	}
	log.Printf("created category %d (%s)", c.ID, c.Slug)
	return nil
}

func createLocation(ctx context.Context, db *blog.Database, args []string) error {
	fs := flag.NewFlagSet("location", flag.ExitOnError)
	var l blog.Location
	fs.StringVar(&l.Name, "name", "", "location name (required)")
	fs.BoolVar(&l.IsPublished, "published", true, "show the location on posts")
	fs.Parse(args)
	if l.Name == "" {
		fs.Usage()
		os.Exit(2)
	}
	if err := db.CreateLocation(ctx, &l); err != nil {
		return err
	}
	log.Printf("created location %d (%s)", l.ID, l.Name)
	return nil
}

func listCategories(ctx context.Context, db *blog.Database) error {
	categories, err := db.ListCategories(ctx)
	if err != nil {
		return err
	}
	for _, c := range categories {
		fmt.Printf("%d\t%s\t%s\tpublished=%t\n", c.ID, c.Slug, c.Title, c.IsPublished)
	}
	return nil
}

func listLocations(ctx context.Context, db *blog.Database) error {
	locations, err := db.ListLocations(ctx)
	if err != nil {
		return err
	}
	for _, l := range locations {
		fmt.Printf("%d\t%s\tpublished=%t\n", l.ID, l.Name, l.IsPublished)
	}
	return nil
}
