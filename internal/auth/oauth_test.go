package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/oauth2"

	"github.com/notely/notely/internal/crypto"
)

func testAuthService() *AuthService {
	return NewAuthService(
		&oauth2.Config{
			ClientID:     "test-client-id",
			ClientSecret: "test-client-secret",
			RedirectURL:  "http://localhost:8080/auth/callback",
		},
		nil,
		"test-tokens-table",
		crypto.NewSecretBoxCipher("test"),
	)
}

func refresh(rt string) *oauth2.Token {
	return &oauth2.Token{AccessToken: "access", RefreshToken: rt, Expiry: time.Now().Add(time.Hour)}
}

func decrypt(t *testing.T, s *AuthService, enc string) string {
	t.Helper()
	out, err := s.cipher.Decrypt(context.Background(), enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	return out
}

func TestAuthService_SaveAndGetUserToken(t *testing.T) {
	s := testAuthService()
	ctx := context.Background()

	err := s.SaveToken(ctx, Profile{ID: "user1", Email: "a@example.com", Name: "Ann"}, refresh("refresh-456"))
	if err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	saved, err := s.GetUserToken(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUserToken failed: %v", err)
	}
	if saved.UserID != "user1" || saved.Email != "a@example.com" || saved.Name != "Ann" {
		t.Errorf("saved = %+v", saved)
	}
	if saved.EncryptedRefreshToken == "refresh-456" {
		t.Error("refresh token stored in clear")
	}
	if got := decrypt(t, s, saved.EncryptedRefreshToken); got != "refresh-456" {
		t.Errorf("decrypted = %q", got)
	}
}

func TestAuthService_GetUserToken_NotFound(t *testing.T) {
	s := testAuthService()
	if _, err := s.GetUserToken(context.Background(), "nonexistent-user"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestAuthService_UpdateBaseFolderID(t *testing.T) {
	s := testAuthService()
	ctx := context.Background()
	s.SaveToken(ctx, Profile{ID: "user1"}, refresh("r"))

	if err := s.UpdateBaseFolderID(ctx, "user1", "folder-abc"); err != nil {
		t.Fatalf("UpdateBaseFolderID failed: %v", err)
	}
	saved, _ := s.GetUserToken(ctx, "user1")
	if saved.BaseFolderID != "folder-abc" {
		t.Errorf("BaseFolderID = %q", saved.BaseFolderID)
	}

	if err := s.UpdateBaseFolderID(ctx, "ghost", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user err = %v", err)
	}
}

func TestAuthService_SaveToken_PreservesBaseFolderID(t *testing.T) {
	s := testAuthService()
	ctx := context.Background()
	s.SaveToken(ctx, Profile{ID: "user1"}, refresh("refresh-1"))
	s.UpdateBaseFolderID(ctx, "user1", "my-folder")

	s.SaveToken(ctx, Profile{ID: "user1", Name: "New Name"}, refresh("refresh-2"))

	saved, _ := s.GetUserToken(ctx, "user1")
	if saved.BaseFolderID != "my-folder" {
		t.Errorf("BaseFolderID = %q, want preserved", saved.BaseFolderID)
	}
	if saved.Name != "New Name" {
		t.Errorf("Name = %q", saved.Name)
	}
	if got := decrypt(t, s, saved.EncryptedRefreshToken); got != "refresh-2" {
		t.Errorf("refresh token = %q", got)
	}
}

func TestAuthService_SaveToken_EmptyRefreshToken(t *testing.T) {
	s := testAuthService()
	ctx := context.Background()

	if err := s.SaveToken(ctx, Profile{ID: "new"}, refresh("")); err == nil {
		t.Error("expected error for first login without refresh token")
	}

	s.SaveToken(ctx, Profile{ID: "user1"}, refresh("original-refresh"))
	if err := s.SaveToken(ctx, Profile{ID: "user1"}, refresh("")); err != nil {
		t.Fatalf("second SaveToken: %v", err)
	}
	saved, _ := s.GetUserToken(ctx, "user1")
	if got := decrypt(t, s, saved.EncryptedRefreshToken); got != "original-refresh" {
		t.Errorf("refresh token = %q, want preserved", got)
	}
}

func TestAuthService_GenerateAuthURL(t *testing.T) {
	url := testAuthService().GenerateAuthURL("test-state")
	for _, want := range []string{"test-state", "test-client-id", "access_type=offline", "prompt=consent"} {
		if !strings.Contains(url, want) {
			t.Errorf("URL %q missing %q", url, want)
		}
	}
}

func TestAuthService_GetClientRefreshes(t *testing.T) {
	var gotRefresh string
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotRefresh = r.Form.Get("refresh_token")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	s := testAuthService()
	s.oauthConfig.Endpoint = oauth2.Endpoint{TokenURL: tokenSrv.URL}
	ctx := context.Background()
	s.SaveToken(ctx, Profile{ID: "u"}, refresh("stored-refresh"))

	client, err := s.GetClient(ctx, "u")
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	resp, err := client.Get(api.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if gotRefresh != "stored-refresh" {
		t.Errorf("refresh_token sent = %q", gotRefresh)
	}
	if gotAuth != "Bearer fresh" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	if _, err := s.GetClient(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetClient(ghost) = %v", err)
	}
}

type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	id := in.Key["user_id"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[id]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	id := in.Item["user_id"].(*types.AttributeValueMemberS).Value
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	id := in.Key["user_id"].(*types.AttributeValueMemberS).Value
	item := f.items[id]
	item["base_folder_id"] = in.ExpressionAttributeValues[":fid"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func TestAuthService_DynamoStore(t *testing.T) {
	fake := &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
	s := NewAuthService(&oauth2.Config{}, fake, "UserTokens", crypto.NewSecretBoxCipher("k"))
	ctx := context.Background()

	if err := s.SaveToken(ctx, Profile{ID: "u1", Email: "u1@example.com"}, refresh("r")); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if err := s.UpdateBaseFolderID(ctx, "u1", "base"); err != nil {
		t.Fatalf("UpdateBaseFolderID: %v", err)
	}

	var raw struct {
		Email        string `dynamodbav:"email"`
		BaseFolderID string `dynamodbav:"base_folder_id"`
	}
	if err := attributevalue.UnmarshalMap(fake.items["u1"], &raw); err != nil {
		t.Fatal(err)
	}
	if raw.Email != "u1@example.com" || raw.BaseFolderID != "base" {
		t.Errorf("stored item = %+v", raw)
	}

	got, err := s.GetUserToken(ctx, "u1")
	if err != nil || got.BaseFolderID != "base" {
		t.Errorf("GetUserToken = %+v, %v", got, err)
	}
	if _, err := s.GetUserToken(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("missing err = %v", err)
	}
}
