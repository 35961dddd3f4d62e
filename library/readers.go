/*
readers.go - Reader registration and maintenance

PURPOSE:
  Readers own two files (profile image and identity document). Their keys
  live on the record; bytes live in the upload provider. Every view carries
  fresh signed URLs instead of keys.

FILE LIFECYCLE:
  Register: upload both, then create. A failed create deletes the uploads.
  Update:   upload replacements, then update. Old keys are deleted after
            the update commits; new keys are deleted if it fails.
  Delete:   refused while the reader has outstanding issuances. After the
            record is gone its files are deleted.

  File cleanup is best-effort: a failed delete is logged and the request
  still succeeds.
*/
package library

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/warp/library-engine/upload"
)

// ReaderView is a reader with retrieval URLs for its files.
type ReaderView struct {
	Reader
	ImageURL    string
	DocumentURL string
}

// ReaderInput carries a registration.
type ReaderInput struct {
	Name        string
	FatherName  string
	PhoneNumber string
	CNIC        string
	CardNumber  string
	Email       string
	Address     string
	Age         int
	Image       *upload.File
	Document    *upload.File
}

// ReaderPatch lists the fields UpdateReader may change.
type ReaderPatch struct {
	Name        *string
	FatherName  *string
	PhoneNumber *string
	CNIC        *string
	CardNumber  *string
	Email       *string
	Address     *string
	Age         *int
	Image       *upload.File
	Document    *upload.File
}

// Readers manages reader records and their files.
type Readers struct {
	readers ReaderStore
	issued  IssuanceStore
	files   upload.Provider
	log     logrus.FieldLogger
	Now     Clock
}

// NewReaders creates the reader service.
func NewReaders(store Store, files upload.Provider, log logrus.FieldLogger) *Readers {
	return &Readers{
		readers: store,
		issued:  store,
		files:   files,
		log:     log,
		Now:     SystemClock,
	}
}

func validateReader(r Reader) error {
	fields := make(map[string]string)
	required := map[string]string{
		"name":        r.Name,
		"fatherName":  r.FatherName,
		"phoneNumber": r.PhoneNumber,
		"CNIC":        r.CNIC,
		"cardNumber":  r.CardNumber,
		"address":     r.Address,
		"email":       r.Email,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			fields[field] = "is required"
		}
	}
	if _, ok := fields["email"]; !ok {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			fields["email"] = "must be a valid email address"
		}
	}
	if r.Age <= 0 {
		fields["age"] = "must be a positive number"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func checkContentType(field string, f *upload.File, prefix string) error {
	if f == nil {
		return NewValidationError(field, "is required")
	}
	if !strings.HasPrefix(strings.ToLower(f.ContentType), prefix) {
		return NewValidationError(field, fmt.Sprintf("must be of type %s", strings.TrimSuffix(prefix, "/")))
	}
	return nil
}

// Register creates a reader with its image and document.
func (s *Readers) Register(ctx context.Context, in ReaderInput) (ReaderView, error) {
	now := s.Now()
	reader := Reader{
		ID:          NewID(),
		Name:        strings.TrimSpace(in.Name),
		FatherName:  strings.TrimSpace(in.FatherName),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		CNIC:        strings.TrimSpace(in.CNIC),
		CardNumber:  strings.TrimSpace(in.CardNumber),
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		Address:     strings.TrimSpace(in.Address),
		Age:         in.Age,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateReader(reader); err != nil {
		return ReaderView{}, err
	}
	if err := checkContentType("image", in.Image, "image/"); err != nil {
		return ReaderView{}, err
	}
	if err := checkContentType("document", in.Document, "application/pdf"); err != nil {
		return ReaderView{}, err
	}

	imageKey, err := s.files.Store(ctx, *in.Image, upload.NamespaceReaderProfiles)
	if err != nil {
		return ReaderView{}, fmt.Errorf("failed to store reader image: %w", err)
	}
	documentKey, err := s.files.Store(ctx, *in.Document, upload.NamespaceReaderDocuments)
	if err != nil {
		s.discard(ctx, imageKey)
		return ReaderView{}, fmt.Errorf("failed to store reader document: %w", err)
	}
	reader.ImageKey = imageKey
	reader.DocumentKey = documentKey

	if err := s.readers.CreateReader(ctx, reader); err != nil {
		s.discard(ctx, imageKey, documentKey)
		return ReaderView{}, err
	}
	return s.view(ctx, reader)
}

// Get returns one reader.
func (s *Readers) Get(ctx context.Context, id string) (ReaderView, error) {
	reader, err := s.readers.GetReader(ctx, id)
	if err != nil {
		return ReaderView{}, err
	}
	return s.view(ctx, reader)
}

// List returns all readers, newest first.
func (s *Readers) List(ctx context.Context) ([]ReaderView, error) {
	readers, err := s.readers.ListReaders(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ReaderView, 0, len(readers))
	for _, reader := range readers {
		view, err := s.view(ctx, reader)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Update applies a patch, replacing files when new ones are given.
func (s *Readers) Update(ctx context.Context, id string, patch ReaderPatch) (ReaderView, error) {
	reader, err := s.readers.GetReader(ctx, id)
	if err != nil {
		return ReaderView{}, err
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&reader.Name, patch.Name)
	setString(&reader.FatherName, patch.FatherName)
	setString(&reader.PhoneNumber, patch.PhoneNumber)
	setString(&reader.CNIC, patch.CNIC)
	setString(&reader.CardNumber, patch.CardNumber)
	setString(&reader.Address, patch.Address)
	if patch.Email != nil {
		reader.Email = strings.ToLower(strings.TrimSpace(*patch.Email))
	}
	if patch.Age != nil {
		reader.Age = *patch.Age
	}
	if err := validateReader(reader); err != nil {
		return ReaderView{}, err
	}
	if patch.Image != nil {
		if err := checkContentType("image", patch.Image, "image/"); err != nil {
			return ReaderView{}, err
		}
	}
	if patch.Document != nil {
		if err := checkContentType("document", patch.Document, "application/pdf"); err != nil {
			return ReaderView{}, err
		}
	}

	var stored, replaced []string
	if patch.Image != nil {
		key, err := s.files.Store(ctx, *patch.Image, upload.NamespaceReaderProfiles)
		if err != nil {
			return ReaderView{}, fmt.Errorf("failed to store reader image: %w", err)
		}
		stored = append(stored, key)
		replaced = append(replaced, reader.ImageKey)
		reader.ImageKey = key
	}
	if patch.Document != nil {
		key, err := s.files.Store(ctx, *patch.Document, upload.NamespaceReaderDocuments)
		if err != nil {
			s.discard(ctx, stored...)
			return ReaderView{}, fmt.Errorf("failed to store reader document: %w", err)
		}
		stored = append(stored, key)
		replaced = append(replaced, reader.DocumentKey)
		reader.DocumentKey = key
	}

	reader.UpdatedAt = s.Now()
	if err := s.readers.UpdateReader(ctx, reader); err != nil {
		s.discard(ctx, stored...)
		return ReaderView{}, err
	}
	s.discard(ctx, replaced...)
	return s.view(ctx, reader)
}

// ToggleBlock flips the blocked flag.
func (s *Readers) ToggleBlock(ctx context.Context, id string) (ReaderView, error) {
	reader, err := s.readers.GetReader(ctx, id)
	if err != nil {
		return ReaderView{}, err
	}
	reader.IsBlocked = !reader.IsBlocked
	reader.UpdatedAt = s.Now()
	if err := s.readers.UpdateReader(ctx, reader); err != nil {
		return ReaderView{}, err
	}
	return s.view(ctx, reader)
}

// Delete removes a reader with no outstanding issuances, then its files.
func (s *Readers) Delete(ctx context.Context, id string) error {
	reader, err := s.readers.GetReader(ctx, id)
	if err != nil {
		return err
	}
	open, err := s.issued.CountOutstanding(ctx, IssuanceFilter{ReaderID: id, OutstandingOnly: true})
	if err != nil {
		return err
	}
	if open > 0 {
		return &OutstandingIssuancesError{Kind: "reader", ID: id, Count: open}
	}
	if err := s.readers.DeleteReader(ctx, id); err != nil {
		return err
	}
	s.discard(ctx, reader.ImageKey, reader.DocumentKey)
	return nil
}

func (s *Readers) view(ctx context.Context, reader Reader) (ReaderView, error) {
	view := ReaderView{Reader: reader}
	var err error
	if reader.ImageKey != "" {
		if view.ImageURL, err = s.files.SignedURL(ctx, reader.ImageKey); err != nil {
			return ReaderView{}, fmt.Errorf("failed to sign reader image: %w", err)
		}
	}
	if reader.DocumentKey != "" {
		if view.DocumentURL, err = s.files.SignedURL(ctx, reader.DocumentKey); err != nil {
			return ReaderView{}, fmt.Errorf("failed to sign reader document: %w", err)
		}
	}
	return view, nil
}

// discard deletes keys, logging failures.
func (s *Readers) discard(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.files.Delete(ctx, key); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("failed to delete stored file")
		}
	}
}
