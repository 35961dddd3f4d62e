package library

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/warp/library-engine/upload"
)

const minPasswordLength = 6

// PasswordHasher hashes and checks admin passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns ErrInvalidCredentials when password does not match.
	Compare(hash, password string) error
}

// AdminView is an admin with a retrieval URL for its image. It never
// carries the password hash out of the service.
type AdminView struct {
	Admin
	ImageURL string
}

// AdminInput carries a new staff account.
type AdminInput struct {
	Name       string
	FatherName string
	Email      string
	Password   string
	Role       Role // empty means librarian
	Address    string
	Phone      string
	CNIC       string
	Age        int
	Image      *upload.File // optional
}

// Admins manages staff accounts.
type Admins struct {
	admins AdminStore
	hasher PasswordHasher
	files  upload.Provider
	log    logrus.FieldLogger
	Now    Clock
}

// NewAdmins creates the admin service.
func NewAdmins(store AdminStore, hasher PasswordHasher, files upload.Provider, log logrus.FieldLogger) *Admins {
	return &Admins{admins: store, hasher: hasher, files: files, log: log, Now: SystemClock}
}

func validateAdmin(in AdminInput) error {
	fields := make(map[string]string)
	for field, value := range map[string]string{
		"name":       in.Name,
		"fatherName": in.FatherName,
		"email":      in.Email,
		"address":    in.Address,
		"phone":      in.Phone,
		"cnic":       in.CNIC,
	} {
		if strings.TrimSpace(value) == "" {
			fields[field] = "is required"
		}
	}
	if _, ok := fields["email"]; !ok {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			fields["email"] = "must be a valid email address"
		}
	}
	if len(in.Password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
	}
	if in.Age <= 0 {
		fields["age"] = "must be a positive number"
	}
	if in.Role != "" && !in.Role.Valid() {
		fields["role"] = "must be one of librarian, super-admin, manager"
	}
	if in.Image != nil && !strings.HasPrefix(strings.ToLower(in.Image.ContentType), "image/") {
		fields["image"] = "must be of type image"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Create registers an admin with a hashed password.
func (s *Admins) Create(ctx context.Context, in AdminInput) (AdminView, error) {
	if err := validateAdmin(in); err != nil {
		return AdminView{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AdminView{}, fmt.Errorf("failed to hash password: %w", err)
	}

	role := in.Role
	if role == "" {
		role = RoleLibrarian
	}
	now := s.Now()
	admin := Admin{
		ID:           NewID(),
		Name:         strings.TrimSpace(in.Name),
		FatherName:   strings.TrimSpace(in.FatherName),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		Role:         role,
		Address:      strings.TrimSpace(in.Address),
		Phone:        strings.TrimSpace(in.Phone),
		CNIC:         strings.TrimSpace(in.CNIC),
		Age:          in.Age,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if in.Image != nil {
		if s.files == nil {
			return AdminView{}, NewValidationError("image", "uploads are not configured")
		}
		key, err := s.files.Store(ctx, *in.Image, upload.NamespaceUserProfiles)
		if err != nil {
			return AdminView{}, fmt.Errorf("failed to store admin image: %w", err)
		}
		admin.ImageKey = key
	}

	if err := s.admins.CreateAdmin(ctx, admin); err != nil {
		if admin.ImageKey != "" {
			if derr := s.files.Delete(ctx, admin.ImageKey); derr != nil {
				s.log.WithError(derr).WithField("key", admin.ImageKey).Warn("failed to delete stored file")
			}
		}
		return AdminView{}, err
	}
	return s.view(ctx, admin)
}

// Get returns one admin.
func (s *Admins) Get(ctx context.Context, id string) (AdminView, error) {
	admin, err := s.admins.GetAdmin(ctx, id)
	if err != nil {
		return AdminView{}, err
	}
	return s.view(ctx, admin)
}

// Authenticate checks an email and password pair.
func (s *Admins) Authenticate(ctx context.Context, email, password string) (AdminView, error) {
	admin, err := s.admins.GetAdminByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return AdminView{}, err
	}
	if err := s.hasher.Compare(admin.PasswordHash, password); err != nil {
		return AdminView{}, err
	}
	if admin.IsBlocked {
		return AdminView{}, fmt.Errorf("%w: admin %q", ErrBlocked, admin.ID)
	}
	return s.view(ctx, admin)
}

func (s *Admins) view(ctx context.Context, admin Admin) (AdminView, error) {
	admin.PasswordHash = ""
	view := AdminView{Admin: admin}
	if admin.ImageKey != "" && s.files != nil {
		url, err := s.files.SignedURL(ctx, admin.ImageKey)
		if err != nil {
			return AdminView{}, fmt.Errorf("failed to sign admin image: %w", err)
		}
		view.ImageURL = url
	}
	return view, nil
}
