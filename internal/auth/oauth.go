package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/oauth2"

	"github.com/notely/notely/internal/crypto"
	"github.com/notely/notely/internal/model"
)

// ErrUserNotFound is returned when no token record exists for a user.
var ErrUserNotFound = errors.New("user not found")

// DynamoAPI is the subset of *dynamodb.Client used for the token table.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Profile is what Google reports about a signed-in user.
type Profile struct {
	ID    string
	Email string
	Name  string
}

// AuthService handles the Google OAuth2 flow and keeps each user's encrypted
// refresh token.
type AuthService struct {
	oauthConfig *oauth2.Config
	dynamo      DynamoAPI
	tableName   string
	cipher      crypto.Cipher
	now         func() time.Time

	// used when dynamo is nil
	tokens map[string]model.UserToken
	mu     sync.RWMutex
}

// NewAuthService creates an AuthService. A nil dynamo client keeps tokens in
// memory.
func NewAuthService(oauthConfig *oauth2.Config, dynamo DynamoAPI, tableName string, cipher crypto.Cipher) *AuthService {
	return &AuthService{
		oauthConfig: oauthConfig,
		dynamo:      dynamo,
		tableName:   tableName,
		cipher:      cipher,
		now:         time.Now,
		tokens:      make(map[string]model.UserToken),
	}
}

// Config returns the OAuth2 config.
func (s *AuthService) Config() *oauth2.Config {
	return s.oauthConfig
}

// GenerateAuthURL returns the Google consent URL. Offline access with forced
// approval makes Google return a refresh token every time.
func (s *AuthService) GenerateAuthURL(state string) string {
	return s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges the authorization code for a token.
func (s *AuthService) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.oauthConfig.Exchange(ctx, code)
}

// SaveToken stores the user's profile and encrypted refresh token. An empty
// refresh token keeps the previously stored one; the base folder is always
// preserved.
func (s *AuthService) SaveToken(ctx context.Context, p Profile, token *oauth2.Token) error {
	existing, err := s.GetUserToken(ctx, p.ID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return err
	}

	userToken := model.UserToken{
		UserID:    p.ID,
		Email:     p.Email,
		Name:      p.Name,
		UpdatedAt: s.now().UTC(),
	}
	if existing != nil {
		userToken.BaseFolderID = existing.BaseFolderID
		userToken.EncryptedRefreshToken = existing.EncryptedRefreshToken
	}

	if token != nil && token.RefreshToken != "" {
		encrypted, err := s.cipher.Encrypt(ctx, token.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		userToken.EncryptedRefreshToken = encrypted
	}
	if userToken.EncryptedRefreshToken == "" {
		return fmt.Errorf("no refresh token in response")
	}

	if s.dynamo == nil {
		s.mu.Lock()
		s.tokens[p.ID] = userToken
		s.mu.Unlock()
		return nil
	}

	item, err := attributevalue.MarshalMap(userToken)
	if err != nil {
		return fmt.Errorf("failed to marshal user token: %w", err)
	}
	if _, err := s.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to save token to DynamoDB: %w", err)
	}
	return nil
}

// GetUserToken returns the stored record for userID.
func (s *AuthService) GetUserToken(ctx context.Context, userID string) (*model.UserToken, error) {
	if s.dynamo == nil {
		s.mu.RLock()
		t, ok := s.tokens[userID]
		s.mu.RUnlock()
		if !ok {
			return nil, ErrUserNotFound
		}
		return &t, nil
	}

	out, err := s.dynamo.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return nil, ErrUserNotFound
	}
	var userToken model.UserToken
	if err := attributevalue.UnmarshalMap(out.Item, &userToken); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user token: %w", err)
	}
	return &userToken, nil
}

// UpdateBaseFolderID records the Drive folder that holds the user's notes.
func (s *AuthService) UpdateBaseFolderID(ctx context.Context, userID, folderID string) error {
	if s.dynamo == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		t, ok := s.tokens[userID]
		if !ok {
			return ErrUserNotFound
		}
		t.BaseFolderID = folderID
		t.UpdatedAt = s.now().UTC()
		s.tokens[userID] = t
		return nil
	}

	_, err := s.dynamo.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression: aws.String("SET base_folder_id = :fid, updated_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":fid": &types.AttributeValueMemberS{Value: folderID},
			":now": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update base folder id: %w", err)
	}
	return nil
}

// GetClient returns an http.Client that authenticates as the user against
// Google APIs, refreshing access tokens from the stored refresh token.
func (s *AuthService) GetClient(ctx context.Context, userID string) (*http.Client, error) {
	userToken, err := s.GetUserToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.cipher.Decrypt(ctx, userToken.EncryptedRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	// expired on purpose so the first request refreshes
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       s.now().Add(-time.Hour),
	}
	return oauth2.NewClient(ctx, s.oauthConfig.TokenSource(ctx, token)), nil
}
