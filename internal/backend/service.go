package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/PriceTracker/internal/auth"
	"github.com/utafrali/PriceTracker/internal/domain"
	"github.com/utafrali/PriceTracker/internal/realtime"
	"github.com/utafrali/PriceTracker/internal/repository"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
	"github.com/utafrali/PriceTracker/pkg/middleware"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

// ProductEvents publishes product domain events.
type ProductEvents interface {
	PublishProductCreated(ctx context.Context, product *domain.Product) error
	PublishProductUpdated(ctx context.Context, product *domain.Product) error
}

// Service implements Client on the repositories, the realtime bus and the
// token manager.
type Service struct {
	products   repository.ProductRepository
	history    repository.PriceHistoryRepository
	users      repository.UserRepository
	bus        realtime.Bus
	events     ProductEvents
	jwtManager *auth.JWTManager
	denylist   auth.Denylist
	logger     *slog.Logger

	bcryptCost int
	now        func() time.Time
}

var _ Client = (*Service)(nil)

// NewService creates the data client. events may be nil when Kafka is not
// configured.
func NewService(
	products repository.ProductRepository,
	history repository.PriceHistoryRepository,
	users repository.UserRepository,
	bus realtime.Bus,
	events ProductEvents,
	jwtManager *auth.JWTManager,
	denylist auth.Denylist,
	logger *slog.Logger,
) *Service {
	return &Service{
		products:   products,
		history:    history,
		users:      users,
		bus:        bus,
		events:     events,
		jwtManager: jwtManager,
		denylist:   denylist,
		logger:     logger,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// WithPasswordCost overrides the bcrypt cost used for new passwords.
func (s *Service) WithPasswordCost(cost int) *Service {
	s.bcryptCost = cost
	return s
}

// --- Auth ---

// ValidateToken checks the signature, expiry and revocation of an access
// token. It is the token validator of the HTTP auth middleware.
func (s *Service) ValidateToken(ctx context.Context, token string) (*middleware.Claims, error) {
	claims, err := s.jwtManager.ValidateAccessToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}

	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, apperrors.Unavailable("session store unavailable", err)
	}
	if revoked {
		return nil, apperrors.Unauthorized("token has been revoked")
	}

	return &middleware.Claims{
		UserID:    claims.UserID,
		Email:     claims.Email,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// CurrentUser returns the user of the session in ctx. Anonymous contexts,
// revoked tokens and deleted users all yield a nil user without error.
func (s *Service) CurrentUser(ctx context.Context) (*domain.User, error) {
	claims := middleware.ClaimsFromContext(ctx)
	if claims == nil {
		return nil, nil
	}

	revoked, err := s.denylist.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if revoked {
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return user, nil
}

// SignOut revokes the token of the session in ctx.
func (s *Service) SignOut(ctx context.Context) error {
	claims := middleware.ClaimsFromContext(ctx)
	if claims == nil {
		return apperrors.Unauthorized("not signed in")
	}

	if err := s.denylist.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}

	s.logger.InfoContext(ctx, "user signed out", slog.String("user_id", claims.UserID))
	return nil
}

// SignUp creates an account and returns its first session.
func (s *Service) SignUp(ctx context.Context, creds Credentials) (*domain.Session, error) {
	email := strings.TrimSpace(creds.Email)
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if len(creds.Password) < minPasswordLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hashed),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user signed up", slog.String("user_id", user.ID))
	return s.newSession(user)
}

// SignIn authenticates with email and password.
func (s *Service) SignIn(ctx context.Context, creds Credentials) (*domain.Session, error) {
	if strings.TrimSpace(creds.Email) == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if creds.Password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(creds.Email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, apperrors.Unauthorized("invalid email or password")
	}

	s.logger.InfoContext(ctx, "user signed in", slog.String("user_id", user.ID))
	return s.newSession(user)
}

func (s *Service) newSession(user *domain.User) (*domain.Session, error) {
	token, claims, err := s.jwtManager.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &domain.Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        user,
	}, nil
}

// --- Data ---

// sessionUserID returns the user of the session in ctx or an Unauthorized error.
func sessionUserID(ctx context.Context) (string, error) {
	id := middleware.UserIDFromContext(ctx)
	if id == "" {
		return "", apperrors.Unauthorized("authentication required")
	}
	return id, nil
}

// ownedProduct loads a product and hides products of other users behind NotFound.
func (s *Service) ownedProduct(ctx context.Context, id string) (*domain.Product, error) {
	userID, err := sessionUserID(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, apperrors.NotFound("product", id)
	}
	return p, nil
}

// ListProducts lists the products of the session user.
func (s *Service) ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	userID, err := sessionUserID(ctx)
	if err != nil {
		return nil, err
	}
	if query.UserID != "" && query.UserID != userID {
		return nil, apperrors.Forbidden("cannot list products of another user")
	}
	query.UserID = userID

	products, err := s.products.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// InsertProduct stores a new product owned by the session user. ID and
// timestamps are assigned here.
func (s *Service) InsertProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	userID, err := sessionUserID(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := *product
	p.ID = uuid.New().String()
	p.UserID = userID
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := s.products.Create(ctx, &p); err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}

	s.notify(ctx, domain.CollectionProducts, domain.ChangeInsert, p.ID, p.UserID)
	if s.events != nil {
		if err := s.events.PublishProductCreated(ctx, &p); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish product.created event",
				slog.String("product_id", p.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "product added",
		slog.String("product_id", p.ID),
		slog.String("user_id", p.UserID),
	)
	return &p, nil
}

// UpdateProduct applies a partial update to a product of the session user.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if _, err := s.ownedProduct(ctx, id); err != nil {
		return err
	}

	updated, err := s.products.Update(ctx, id, patch)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	s.notify(ctx, domain.CollectionProducts, domain.ChangeUpdate, updated.ID, updated.UserID)
	s.publishUpdated(ctx, updated)
	return nil
}

// ListPriceHistory lists the history of a product of the session user.
func (s *Service) ListPriceHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.PriceHistoryPoint, error) {
	if _, err := s.ownedProduct(ctx, query.ProductID); err != nil {
		return nil, err
	}

	points, err := s.history.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list price history: %w", err)
	}
	return points, nil
}

// RecordPrice appends a history point and makes it the product's current
// price. It runs on behalf of the price update process, not a user session.
func (s *Service) RecordPrice(ctx context.Context, productID string, price decimal.Decimal, at time.Time) error {
	if price.IsNegative() {
		return apperrors.InvalidInput("price must not be negative")
	}
	if at.IsZero() {
		at = s.now()
	}

	point := &domain.PriceHistoryPoint{
		ID:         uuid.New().String(),
		ProductID:  productID,
		Price:      price,
		RecordedAt: at.UTC(),
	}
	updated, err := s.history.Append(ctx, point)
	if err != nil {
		return fmt.Errorf("record price: %w", err)
	}

	s.notify(ctx, domain.CollectionPriceHistory, domain.ChangeInsert, point.ID, updated.UserID)
	s.notify(ctx, domain.CollectionProducts, domain.ChangeUpdate, updated.ID, updated.UserID)
	s.publishUpdated(ctx, updated)
	return nil
}

func (s *Service) publishUpdated(ctx context.Context, p *domain.Product) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishProductUpdated(ctx, p); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.updated event",
			slog.String("product_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

// notify publishes a change event. The write already succeeded, so failures
// are logged only; subscribers catch up on their next reload.
func (s *Service) notify(ctx context.Context, collection string, kind domain.ChangeType, recordID, userID string) {
	event := domain.ChangeEvent{
		Collection:      collection,
		Type:            kind,
		RecordID:        recordID,
		UserID:          userID,
		CommitTimestamp: s.now().UTC(),
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish change event",
			slog.String("collection", collection),
			slog.String("record_id", recordID),
			slog.String("error", err.Error()),
		)
	}
}

// --- Realtime ---

// Subscribe streams change events of a collection. Every row change is
// delivered; there is no per-user filter.
func (s *Service) Subscribe(ctx context.Context, collection string, mask domain.EventMask, handler ChangeHandler) (Subscription, error) {
	sub, err := s.bus.Subscribe(ctx, collection, mask, realtime.Handler(handler))
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", collection, err)
	}
	return sub, nil
}
