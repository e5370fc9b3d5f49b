package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	custrepo "ourofino-storefront/internal/repository/customer"
)

// DefaultPhone is stored when the customer has not given a phone number.
const DefaultPhone = "Não informado"

// Service keeps the customer directory in step with checkout data and the
// identity provider.
type Service struct {
	repo   custrepo.Repository
	logger *zap.Logger
}

func New(repo custrepo.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetByEmail returns domain.ErrNotFound when no customer has the email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email required", domain.ErrInvalidInput)
	}
	return s.repo.GetByEmail(ctx, email)
}

// ResolveOrCreate returns the customer with c.Email, creating it when the
// lookup finds nobody. Repeated calls with the same email yield one record.
func (s *Service) ResolveOrCreate(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	c.Email = normalizeEmail(c.Email)
	if c.Email == "" {
		return nil, fmt.Errorf("%w: email required", domain.ErrInvalidInput)
	}
	existing, err := s.repo.GetByEmail(ctx, c.Email)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("lookup customer: %w", err)
	}
	if strings.TrimSpace(c.Phone) == "" {
		c.Phone = DefaultPhone
	}
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	s.logger.Info("customer created", zap.Int("customer_id", created.ID))
	return created, nil
}

// SaveAddress stores addr for the customer, updating the first saved address
// when there is one.
func (s *Service) SaveAddress(ctx context.Context, who domain.Customer, addr domain.Address) (*domain.Address, error) {
	if strings.TrimSpace(addr.ZipCode) == "" || strings.TrimSpace(addr.Street) == "" {
		return nil, fmt.Errorf("%w: street and zip code required", domain.ErrInvalidInput)
	}
	c, err := s.ResolveOrCreate(ctx, who)
	if err != nil {
		return nil, err
	}
	if len(c.Addresses) > 0 {
		return s.repo.UpdateAddress(ctx, c.Addresses[0].ID, addr)
	}
	return s.repo.CreateAddress(ctx, c.ID, addr)
}

func fromIdentity(u domain.Identity) domain.Customer {
	phone := u.Phone
	if phone == "" {
		phone = DefaultPhone
	}
	return domain.Customer{
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     normalizeEmail(u.Email),
		Phone:     phone,
		ClerkID:   u.UserID,
	}
}

// MirrorIdentityEvent applies an identity provider event to the directory.
// Unknown event types are ignored.
func (s *Service) MirrorIdentityEvent(ctx context.Context, ev domain.IdentityEvent) error {
	logger := s.logger.With(zap.String("event", ev.Type), zap.String("user_id", ev.User.UserID))
	switch ev.Type {
	case domain.IdentityUserCreated:
		c := fromIdentity(ev.User)
		existing, err := s.repo.GetByEmail(ctx, c.Email)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if _, err := s.repo.Create(ctx, c); err != nil {
				return fmt.Errorf("mirror create: %w", err)
			}
		case err != nil:
			return err
		case existing.ClerkID == "":
			c.Address = existing.Address
			if _, err := s.repo.Update(ctx, existing.ID, c); err != nil {
				return fmt.Errorf("mirror link: %w", err)
			}
		}
		logger.Info("identity mirrored")
		return nil

	case domain.IdentityUserUpdated:
		existing, err := s.repo.GetByClerkID(ctx, ev.User.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("updated user not in directory, creating")
			_, err = s.ResolveOrCreate(ctx, fromIdentity(ev.User))
			return err
		}
		if err != nil {
			return err
		}
		c := fromIdentity(ev.User)
		c.CPF = existing.CPF
		c.Address = existing.Address
		if _, err := s.repo.Update(ctx, existing.ID, c); err != nil {
			return fmt.Errorf("mirror update: %w", err)
		}
		logger.Info("identity updated")
		return nil

	case domain.IdentityUserDeleted:
		existing, err := s.repo.GetByClerkID(ctx, ev.User.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, existing.ID); err != nil {
			return fmt.Errorf("mirror delete: %w", err)
		}
		logger.Info("identity deleted")
		return nil
	}
	logger.Debug("identity event ignored")
	return nil
}
