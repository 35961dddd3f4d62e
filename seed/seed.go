/*
seed.go - YAML fixtures for a fresh library

PURPOSE:
  Populates categories, books and admin accounts from a YAML file so a new
  deployment (or a demo) starts with usable data.

FILE FORMAT:
  categories:
    - Fiction
  books:
    - title: Dune
      author: Frank Herbert
      serialNumber: SN-0001
      price: "12.50"
      quantity: 3
      category: Fiction        # category name, not id
  admins:
    - name: Root
      email: root@example.com
      password: changeme
      role: super-admin

HOW APPLY WORKS:
  1. Categories first, so books can resolve them by name
  2. Books, each resolved against the category list
  3. Admins, hashed through the admin service
  Entries that already exist (Conflict) are skipped, so Apply can be run
  repeatedly against the same database.

SEE ALSO:
  - cmd/server/main.go: seed command
*/
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/warp/library-engine/library"
)

// File is a parsed fixture file.
type File struct {
	Categories []string `yaml:"categories"`
	Books      []Book   `yaml:"books"`
	Admins     []Admin  `yaml:"admins"`
}

type Book struct {
	Title        string `yaml:"title"`
	Author       string `yaml:"author"`
	SerialNumber string `yaml:"serialNumber"`
	Edition      string `yaml:"edition"`
	Price        string `yaml:"price"`
	Quantity     int    `yaml:"quantity"`
	Category     string `yaml:"category"`
}

type Admin struct {
	Name       string `yaml:"name"`
	FatherName string `yaml:"fatherName"`
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	Role       string `yaml:"role"`
	Address    string `yaml:"address"`
	Phone      string `yaml:"phone"`
	CNIC       string `yaml:"cnic"`
	Age        int    `yaml:"age"`
}

// Report counts what Apply did.
type Report struct {
	Created map[string]int
	Skipped map[string]int
}

func newReport() Report {
	return Report{Created: map[string]int{}, Skipped: map[string]int{}}
}

// Load reads a fixture file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	return Parse(data)
}

// Parse decodes fixture YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixtures YAML: %w", err)
	}
	return &f, nil
}

// Apply creates every fixture that does not exist yet. It stops at the
// first error that is not a Conflict.
func Apply(ctx context.Context, f *File, catalog *library.Catalog, admins *library.Admins, log logrus.FieldLogger) (Report, error) {
	report := newReport()

	for _, name := range f.Categories {
		_, err := catalog.CreateCategory(ctx, name)
		if err := tally(&report, "category", err); err != nil {
			return report, fmt.Errorf("category %q: %w", name, err)
		}
	}

	categories, err := catalog.ListCategories(ctx)
	if err != nil {
		return report, err
	}
	byName := make(map[string]string, len(categories))
	for _, c := range categories {
		byName[strings.ToLower(c.Name)] = c.ID
	}

	for _, b := range f.Books {
		categoryID, ok := byName[strings.ToLower(strings.TrimSpace(b.Category))]
		if !ok {
			return report, fmt.Errorf("book %q: %w", b.SerialNumber,
				&library.NotFoundError{Kind: "category", ID: b.Category})
		}
		price := decimal.Zero
		if b.Price != "" {
			if price, err = decimal.NewFromString(b.Price); err != nil {
				return report, fmt.Errorf("book %q: invalid price %q", b.SerialNumber, b.Price)
			}
		}
		_, err := catalog.CreateBook(ctx, library.BookInput{
			Title:        b.Title,
			Author:       b.Author,
			SerialNumber: b.SerialNumber,
			Edition:      b.Edition,
			Price:        price,
			Quantity:     b.Quantity,
			CategoryID:   categoryID,
		})
		if err := tally(&report, "book", err); err != nil {
			return report, fmt.Errorf("book %q: %w", b.SerialNumber, err)
		}
	}

	for _, a := range f.Admins {
		_, err := admins.Create(ctx, library.AdminInput{
			Name:       a.Name,
			FatherName: a.FatherName,
			Email:      a.Email,
			Password:   a.Password,
			Role:       library.Role(a.Role),
			Address:    a.Address,
			Phone:      a.Phone,
			CNIC:       a.CNIC,
			Age:        a.Age,
		})
		if err := tally(&report, "admin", err); err != nil {
			return report, fmt.Errorf("admin %q: %w", a.Email, err)
		}
	}

	log.WithFields(logrus.Fields{
		"created": report.Created,
		"skipped": report.Skipped,
	}).Info("fixtures applied")
	return report, nil
}

func tally(r *Report, kind string, err error) error {
	switch {
	case err == nil:
		r.Created[kind]++
	case library.IsConflict(err):
		r.Skipped[kind]++
	default:
		return err
	}
	return nil
}
