package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"Go_Drop/internal/log"
	"Go_Drop/model"
	"Go_Drop/utils"
)

const activationTTL = 10 * time.Minute

// Mailer sends the activation link of a pending registration.
type Mailer func(to, link string) error

// UserService handles registration, activation and login.
type UserService struct {
	db      *gorm.DB
	cache   utils.Cache
	mailer  Mailer
	baseURL string
}

// NewUserService creates the service. A nil mailer activates accounts
// immediately at registration.
func NewUserService(db *gorm.DB, cache utils.Cache, mailer Mailer, baseURL string) *UserService {
	if cache == nil {
		cache = utils.NewMemoryCache()
	}
	return &UserService{db: db, cache: cache, mailer: mailer, baseURL: strings.TrimRight(baseURL, "/")}
}

type pendingRegistration struct {
	UserName string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account. With a mailer configured the account is
// kept pending until the emailed link is opened; the returned user is nil
// in that case.
func (s *UserService) Register(ctx context.Context, username, password, email string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || password == "" || email == "" {
		return nil, fmt.Errorf("%w: username, password and email required", ErrInvalidInput)
	}
	if err := s.ensureAvailable(ctx, username, email); err != nil {
		return nil, err
	}
	hash, err := utils.GetPwd(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if s.mailer == nil {
		user := &model.User{UserName: username, Email: email, Password: hash, NickName: username, IsActive: true}
		if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return user, nil
	}

	token := utils.GetToken()
	pending := pendingRegistration{UserName: username, Email: email, Password: hash}
	key := utils.BuildCacheKey(utils.CacheKeyPendingRegistration, token)
	if err := s.cache.Set(ctx, key, pending, activationTTL); err != nil {
		return nil, fmt.Errorf("store pending registration: %w", err)
	}
	link := s.baseURL + "/api/activate?token=" + token
	if err := s.mailer(email, link); err != nil {
		_ = s.cache.Delete(ctx, key)
		return nil, fmt.Errorf("send activation mail: %w", err)
	}
	log.Infof("activation mail sent to %s", email)
	return nil, nil
}

// Activate turns a pending registration into an active account.
func (s *UserService) Activate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrActivationInvalid
	}
	key := utils.BuildCacheKey(utils.CacheKeyPendingRegistration, token)
	var pending pendingRegistration
	if err := s.cache.Get(ctx, key, &pending); err != nil {
		return nil, ErrActivationInvalid
	}
	if err := s.ensureAvailable(ctx, pending.UserName, pending.Email); err != nil {
		return nil, err
	}
	user := &model.User{
		UserName: pending.UserName,
		Email:    pending.Email,
		Password: pending.Password,
		NickName: pending.UserName,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	_ = s.cache.Delete(ctx, key)
	return user, nil
}

// Login checks credentials and returns the user with a signed token.
func (s *UserService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("user_name = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if !utils.CheckPwd(password, user.Password) {
		return nil, "", ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, "", ErrUserInactive
	}
	token, err := utils.GenerateToken(user.ID, user.UserName)
	if err != nil {
		return nil, "", fmt.Errorf("sign token: %w", err)
	}
	return &user, token, nil
}

// GetUser returns a user by id.
func (s *UserService) GetUser(ctx context.Context, userID uint64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) ensureAvailable(ctx context.Context, username, email string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("user_name = ? OR email = ?", username, email).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrUserExists
	}
	return nil
}
