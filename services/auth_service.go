package services

import (
	"log"
	"net/http"
	"time"

	"github.com/nexchat-app/nexchat/config"
	"github.com/nexchat-app/nexchat/db"
	apiError "github.com/nexchat-app/nexchat/errors"
	"github.com/nexchat-app/nexchat/models"
	"github.com/nexchat-app/nexchat/services/encrypt"
	"github.com/nexchat-app/nexchat/services/jwt"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthService is the identity collaborator: it issues and rotates the bearer
// credentials the messaging core authenticates against.
type AuthService interface {
	SignupUser(user *models.User) (*models.User, error)
	LoginUser(loginRequest *models.LoginRequest) (*models.LoginResponse, *apiError.Error)
	RefreshToken(refreshToken string) (*models.LoginResponse, *apiError.Error)
	Logout(accessToken string) error
}

type authService struct {
	Config   *config.Config
	authRepo db.AuthRepository
}

func NewAuthService(authRepo db.AuthRepository, conf *config.Config) AuthService {
	return &authService{
		Config:   conf,
		authRepo: authRepo,
	}
}

func (s *authService) SignupUser(user *models.User) (*models.User, error) {
	if user == nil {
		return nil, errors.New("user is nil")
	}
	if user.Email == "" {
		return nil, errors.New("email is empty")
	}

	if err := s.authRepo.IsEmailExist(user.Email); err != nil {
		log.Printf("SignupUser error: %v", err)
		return nil, apiError.GetUniqueContraintError(err)
	}

	if err := models.ValidatePassword(user.Password); err != nil {
		return nil, apiError.New(err.Error(), http.StatusBadRequest)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("SignupUser error hashing password: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	user.HashedPassword = string(hashedPassword)
	user.Password = ""

	user, err = s.authRepo.CreateUser(user)
	if err != nil {
		log.Printf("SignupUser error creating user: %v", err)
		return nil, apiError.GetUniqueContraintError(err)
	}
	return user, nil
}

func (s *authService) LoginUser(loginRequest *models.LoginRequest) (*models.LoginResponse, *apiError.Error) {
	user, err := s.authRepo.FindUserByEmail(loginRequest.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.New("invalid email or password", http.StatusUnauthorized)
		}
		log.Printf("LoginUser error: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(loginRequest.Password)); err != nil {
		return nil, apiError.New("invalid email or password", http.StatusUnauthorized)
	}

	return s.issueTokens(user)
}

// RefreshToken rotates a persisted refresh credential: the presented token
// is retired and a new pair is issued.
func (s *authService) RefreshToken(refreshToken string) (*models.LoginResponse, *apiError.Error) {
	stored, err := s.authRepo.FindRefreshToken(refreshToken)
	if err != nil {
		return nil, apiError.New("invalid refresh token", http.StatusUnauthorized)
	}
	if time.Now().After(stored.ExpiresAt) {
		_ = s.authRepo.DeleteRefreshToken(refreshToken)
		return nil, apiError.New("refresh token expired", http.StatusUnauthorized)
	}

	user, err := s.authRepo.FindUserByID(stored.UserID)
	if err != nil {
		return nil, apiError.ErrUnauthorized
	}

	if err := s.authRepo.DeleteRefreshToken(refreshToken); err != nil {
		log.Printf("RefreshToken rotation error: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	return s.issueTokens(user)
}

func (s *authService) Logout(accessToken string) error {
	return s.authRepo.AddToBlackList(&models.Blacklist{Token: accessToken})
}

func (s *authService) issueTokens(user *models.User) (*models.LoginResponse, *apiError.Error) {
	accessToken, err := jwt.GenerateToken(user.ID, s.Config.JWTSecret,
		time.Duration(s.Config.AccessTokenMinutes)*time.Minute)
	if err != nil {
		log.Printf("issueTokens error: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	refreshValue, err := encrypt.GenerateSecureRandom(32)
	if err != nil {
		log.Printf("issueTokens error: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	refreshToken := &models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshValue,
		ExpiresAt: time.Now().Add(time.Duration(s.Config.RefreshTokenHours) * time.Hour),
	}
	if err := s.authRepo.CreateRefreshToken(refreshToken); err != nil {
		log.Printf("issueTokens error storing refresh token: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	return &models.LoginResponse{
		User:         user.Response(),
		AccessToken:  accessToken,
		RefreshToken: refreshValue,
	}, nil
}
