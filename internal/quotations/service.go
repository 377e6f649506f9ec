package quotations

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foliohq/folio/internal/sharelink"
)

// RepositoryPort defines data access methods for quotations.
type RepositoryPort interface {
	List(ctx context.Context) ([]Quotation, error)
	FindBySlug(ctx context.Context, slug string) (*Quotation, error)
	Create(ctx context.Context, q Quotation) error
	UpdateStatus(ctx context.Context, slug, status string) error
}

// Service handles quotation business logic, including share-code issuance.
type Service struct {
	repo    RepositoryPort
	secrets sharelink.Repository
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, secrets sharelink.Repository) *Service {
	return &Service{repo: repo, secrets: secrets}
}

// List returns all quotations.
func (s *Service) List(ctx context.Context) ([]Quotation, error) {
	return s.repo.List(ctx)
}

// GetBySlug fetches one quotation.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Quotation, error) {
	return s.repo.FindBySlug(ctx, slug)
}

// Create inserts a new draft quotation.
func (s *Service) Create(ctx context.Context, clientName, title, currency string, total float64) (*Quotation, error) {
	now := time.Now().UTC()
	q := Quotation{
		ID:         uuid.NewString(),
		Slug:       newSlug(),
		ClientName: clientName,
		Title:      title,
		Currency:   currency,
		Total:      total,
		Status:     StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, q); err != nil {
		return nil, err
	}
	return &q, nil
}

// UpdateStatus moves a quotation through its lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, slug, status string) error {
	return s.repo.UpdateStatus(ctx, slug, status)
}

// IssueShareCode generates a fresh access code for the quotation's share
// link, stores its hash, and returns the plaintext once. Re-issuing
// replaces the previous code.
func (s *Service) IssueShareCode(ctx context.Context, slug string, validFor time.Duration) (string, error) {
	if _, err := s.repo.FindBySlug(ctx, slug); err != nil {
		return "", err
	}
	code, err := newShareCode()
	if err != nil {
		return "", err
	}
	hash, err := sharelink.HashCode(code)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	var expiresAt time.Time
	if validFor > 0 {
		expiresAt = now.Add(validFor)
	}
	if err := s.secrets.Upsert(ctx, sharelink.AccessSecret{
		ResourceSlug: slug,
		CodeHash:     hash,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
	}); err != nil {
		return "", err
	}
	return code, nil
}

// RevokeShareCode disables the quotation's share link.
func (s *Service) RevokeShareCode(ctx context.Context, slug string) error {
	return s.secrets.Delete(ctx, slug)
}

func newSlug() string {
	return "q-" + strings.ToLower(uuid.NewString()[:8])
}

// newShareCode returns an 8-character base32 code without padding,
// readable enough to dictate over the phone.
func newShareCode() (string, error) {
	raw := make([]byte, 5)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}
