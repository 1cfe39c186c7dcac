package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ideahub/ideahub/config"
	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/utils"
)

type envelope struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

func newTestRouter(t *testing.T) (*gin.Engine, config.AppConfig) {
	t.Helper()

	// The cache and redis singletons read the process config; point them at a
	// closed port so every cache access degrades to a miss.
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("REDIS_PORT", "1")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	// A single connection keeps the shared in-memory database alive.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.User{}, &models.Post{}, &models.Comment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.AppConfig{
		AppPort:            "8080",
		JWTSecret:          "test-secret",
		GinMode:            "test",
		RateLimitPerMinute: 100000,
		AllowedOrigins:     []string{"*"},
		UploadDir:          t.TempDir(),
		GinPath:            filepath.Join(t.TempDir(), "gin.log"),
		LogLevel:           "error",
	}
	return SetupRouter(db, cfg), cfg
}

func doJSON(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doMultipart(t *testing.T, r *gin.Engine, method, path string, post interface{}, fileName string, fileContent []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	b, err := json.Marshal(post)
	if err != nil {
		t.Fatalf("marshal post payload: %v", err)
	}
	if err := mw.WriteField("post", string(b)); err != nil {
		t.Fatalf("write post field: %v", err)
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("resource", fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(fileContent); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	mw.Close()

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return env
}

func registerUser(t *testing.T, r *gin.Engine, name, email string) uint {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/user/register", gin.H{
		"name":       name,
		"email":      email,
		"password":   "secret-123",
		"department": "engineering",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", email, w.Code, w.Body.String())
	}
	env := decode(t, w)
	return uint(env.Data["id"].(float64))
}

func loginUser(t *testing.T, r *gin.Engine, email string) string {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/user/login", gin.H{
		"email":    email,
		"password": "secret-123",
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, w.Code, w.Body.String())
	}
	env := decode(t, w)
	token, _ := env.Data["token"].(string)
	if token == "" {
		t.Fatalf("login %s: empty token", email)
	}
	return token
}

func createPost(t *testing.T, r *gin.Engine, token string, authorID uint, externalID, title string) uint {
	t.Helper()
	w := doMultipart(t, r, http.MethodPost, "/api/posts", gin.H{
		"id":      externalID,
		"title":   title,
		"author":  gin.H{"id": fmt.Sprint(authorID), "name": "Author"},
		"content": "some content",
		"tags":    []string{"go", "backend"},
	}, "", nil, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create post: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	post := env.Data["post"].(map[string]interface{})
	return uint(post["id"].(float64))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	r, _ := newTestRouter(t)

	registerUser(t, r, "Alice", "alice@example.com")

	w := doJSON(r, http.MethodPost, "/user/register", gin.H{
		"name":     "Alice Again",
		"email":    "alice@example.com",
		"password": "secret-123",
	}, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d: %s", w.Code, w.Body.String())
	}

	registerUser(t, r, "Bob", "bob@example.com")
}

func TestLogin(t *testing.T) {
	r, cfg := newTestRouter(t)
	id := registerUser(t, r, "Alice", "alice@example.com")

	w := doJSON(r, http.MethodPost, "/user/login", gin.H{"email": "alice@example.com", "password": "secret-123"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	claims, err := utils.ParseToken(cfg.JWTSecret, env.Data["token"].(string))
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.UserID != id {
		t.Fatalf("token user id = %d, want %d", claims.UserID, id)
	}
	if exp := claims.ExpiresAt.Time; time.Until(exp) > 2*time.Hour+time.Minute {
		t.Fatalf("token expiry too far in the future: %v", exp)
	}

	w = doJSON(r, http.MethodPost, "/user/login", gin.H{"email": "alice@example.com", "password": "wrong"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/user/login", gin.H{"email": "nobody@example.com", "password": "secret-123"}, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown email, got %d", w.Code)
	}
}

func TestAuthGuard(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/posts/all", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/api/posts/all", nil, "not-a-token")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", w.Code)
	}
}

func TestCreatePost(t *testing.T) {
	r, _ := newTestRouter(t)
	id := registerUser(t, r, "Alice", "alice@example.com")
	token := loginUser(t, r, "alice@example.com")

	w := doMultipart(t, r, http.MethodPost, "/api/posts", gin.H{
		"id":      "p1",
		"title":   "T",
		"author":  gin.H{"id": fmt.Sprint(id), "name": "A"},
		"content": "C",
	}, "", nil, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	post := env.Data["post"].(map[string]interface{})
	if post["status"] != "draft" {
		t.Fatalf("status = %v, want draft", post["status"])
	}
	if post["upvotes"].(float64) != 0 || post["downvotes"].(float64) != 0 {
		t.Fatalf("vote counters not zeroed: %v", post)
	}
	if post["external_id"] != "p1" {
		t.Fatalf("external_id = %v, want p1", post["external_id"])
	}

	// missing content
	w = doMultipart(t, r, http.MethodPost, "/api/posts", gin.H{
		"id":     "p2",
		"title":  "T",
		"author": gin.H{"id": fmt.Sprint(id), "name": "A"},
	}, "", nil, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing content, got %d", w.Code)
	}
}

func TestLikeToggleRoundTrip(t *testing.T) {
	r, _ := newTestRouter(t)
	uid := registerUser(t, r, "Alice", "alice@example.com")
	token := loginUser(t, r, "alice@example.com")
	postID := createPost(t, r, token, uid, "p1", "Likeable")

	path := fmt.Sprintf("/api/posts/like/%d/by/u1", postID)

	w := doJSON(r, http.MethodPut, path, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("first toggle: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env := decode(t, w); env.Data["status"].(float64) != 1 {
		t.Fatalf("first toggle status = %v, want 1", env.Data["status"])
	}

	w = doJSON(r, http.MethodPut, path, nil, token)
	if env := decode(t, w); env.Data["status"].(float64) != 0 {
		t.Fatalf("second toggle status = %v, want 0", env.Data["status"])
	}

	w = doJSON(r, http.MethodGet, fmt.Sprintf("/api/posts/getPost/%d", postID), nil, token)
	env := decode(t, w)
	post := env.Data["post"].(map[string]interface{})
	if likes, _ := post["likes"].([]interface{}); len(likes) != 0 {
		t.Fatalf("likes should be empty after round trip, got %v", likes)
	}

	w = doJSON(r, http.MethodPut, "/api/posts/like/99999/by/u1", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing post, got %d", w.Code)
	}
}

func TestVoteCounters(t *testing.T) {
	r, _ := newTestRouter(t)
	uid := registerUser(t, r, "Alice", "alice@example.com")
	token := loginUser(t, r, "alice@example.com")
	postID := createPost(t, r, token, uid, "p1", "Votable")

	upvote := fmt.Sprintf("/api/posts/%d/upvote", postID)
	for _, inc := range []int{1, 1, -1} {
		w := doJSON(r, http.MethodPut, upvote, gin.H{"increment": inc}, token)
		if w.Code != http.StatusOK {
			t.Fatalf("upvote %d: expected 200, got %d: %s", inc, w.Code, w.Body.String())
		}
	}
	w := doJSON(r, http.MethodGet, fmt.Sprintf("/api/posts/getPost/%d", postID), nil, token)
	env := decode(t, w)
	post := env.Data["post"].(map[string]interface{})
	if up := post["upvotes"].(float64); up != 1 {
		t.Fatalf("upvotes = %v, want 1", up)
	}

	// counters clamp at zero instead of going negative
	w = doJSON(r, http.MethodPut, fmt.Sprintf("/api/posts/%d/downvote", postID), gin.H{"increment": -5}, token)
	env = decode(t, w)
	post = env.Data["post"].(map[string]interface{})
	if down := post["downvotes"].(float64); down != 0 {
		t.Fatalf("downvotes = %v, want 0 (clamped)", down)
	}

	w = doJSON(r, http.MethodPut, "/api/posts/99999/upvote", gin.H{"increment": 1}, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing post, got %d", w.Code)
	}
}

func TestUpdatePostAuthorization(t *testing.T) {
	r, _ := newTestRouter(t)
	aliceID := registerUser(t, r, "Alice", "alice@example.com")
	aliceToken := loginUser(t, r, "alice@example.com")
	bobID := registerUser(t, r, "Bob", "bob@example.com")
	bobToken := loginUser(t, r, "bob@example.com")

	postID := createPost(t, r, aliceToken, aliceID, "p1", "Original")
	payload := gin.H{"title": "Edited", "content": "new content", "tags": []string{"edited"}}

	// stranger
	w := doMultipart(t, r, http.MethodPut, fmt.Sprintf("/api/posts/%d", postID), payload, "", nil, bobToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-author, got %d: %s", w.Code, w.Body.String())
	}

	// author
	w = doMultipart(t, r, http.MethodPut, fmt.Sprintf("/api/posts/%d", postID), payload, "", nil, aliceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for author, got %d: %s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	post := env.Data["post"].(map[string]interface{})
	if post["title"] != "Edited" {
		t.Fatalf("title = %v, want Edited", post["title"])
	}
	if post["status"] != "draft" {
		t.Fatalf("status should fall back to stored value, got %v", post["status"])
	}

	// moderator
	w = doJSON(r, http.MethodPatch, fmt.Sprintf("/user/%d/moderator", bobID), nil, bobToken)
	if w.Code != http.StatusOK {
		t.Fatalf("toggle moderator: expected 200, got %d", w.Code)
	}
	if env := decode(t, w); env.Data["is_moderator"] != true {
		t.Fatalf("is_moderator = %v, want true", env.Data["is_moderator"])
	}
	w = doMultipart(t, r, http.MethodPut, fmt.Sprintf("/api/posts/%d", postID), gin.H{
		"title": "Moderated", "content": "moderated content",
	}, "", nil, bobToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for moderator, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDeletePostRemovesResource(t *testing.T) {
	r, cfg := newTestRouter(t)
	uid := registerUser(t, r, "Alice", "alice@example.com")
	token := loginUser(t, r, "alice@example.com")

	w := doMultipart(t, r, http.MethodPost, "/api/posts", gin.H{
		"id":      "p1",
		"title":   "With resource",
		"author":  gin.H{"id": fmt.Sprint(uid), "name": "Alice"},
		"content": "body",
	}, "diagram.png", []byte("not really a png"), token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	post := env.Data["post"].(map[string]interface{})
	resource, _ := post["resource"].(string)
	if resource == "" {
		t.Fatalf("resource path not recorded: %v", post)
	}
	if _, err := os.Stat(resource); err != nil {
		t.Fatalf("resource file not stored: %v", err)
	}
	if !strings.HasPrefix(resource, cfg.UploadDir) {
		t.Fatalf("resource %q stored outside upload dir %q", resource, cfg.UploadDir)
	}

	postID := uint(post["id"].(float64))
	w = doJSON(r, http.MethodDelete, fmt.Sprintf("/api/posts/%d", postID), nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodGet, fmt.Sprintf("/api/posts/getPost/%d", postID), nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}

	// file removal is asynchronous
	waitForRemoval(t, resource)
}

func waitForRemoval(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("file %s still present", path)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUpdatePostReplacesResource(t *testing.T) {
	r, _ := newTestRouter(t)
	uid := registerUser(t, r, "Alice", "alice@example.com")
	token := loginUser(t, r, "alice@example.com")

	w := doMultipart(t, r, http.MethodPost, "/api/posts", gin.H{
		"id":      "p1",
		"title":   "Draft",
		"author":  gin.H{"id": fmt.Sprint(uid), "name": "Alice"},
		"content": "body",
	}, "first.txt", []byte("first attachment"), token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	post := env.Data["post"].(map[string]interface{})
	oldResource := post["resource"].(string)
	postID := uint(post["id"].(float64))

	w = doMultipart(t, r, http.MethodPut, fmt.Sprintf("/api/posts/%d", postID), gin.H{
		"title":   "Draft",
		"content": "body",
	}, "second.txt", []byte("second attachment"), token)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	env = decode(t, w)
	post = env.Data["post"].(map[string]interface{})
	newResource, _ := post["resource"].(string)
	if newResource == "" || newResource == oldResource {
		t.Fatalf("resource path not replaced: old=%q new=%q", oldResource, newResource)
	}
	if _, err := os.Stat(newResource); err != nil {
		t.Fatalf("replacement file not stored: %v", err)
	}
	waitForRemoval(t, oldResource)
}

func TestUpdatePostRemovesResourceOnRequest(t *testing.T) {
	r, _ := newTestRouter(t)
	uid := registerUser(t, r, "Alice", "alice@example.com")
	token := loginUser(t, r, "alice@example.com")

	w := doMultipart(t, r, http.MethodPost, "/api/posts", gin.H{
		"id":      "p1",
		"title":   "Draft",
		"author":  gin.H{"id": fmt.Sprint(uid), "name": "Alice"},
		"content": "body",
	}, "attachment.txt", []byte("attachment"), token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	post := env.Data["post"].(map[string]interface{})
	resource := post["resource"].(string)
	postID := uint(post["id"].(float64))

	w = doMultipart(t, r, http.MethodPut, fmt.Sprintf("/api/posts/%d", postID), gin.H{
		"title":          "Draft",
		"content":        "body",
		"removeResource": true,
	}, "", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	env = decode(t, w)
	post = env.Data["post"].(map[string]interface{})
	if cleared, _ := post["resource"].(string); cleared != "" {
		t.Fatalf("resource field not cleared: %q", cleared)
	}
	waitForRemoval(t, resource)
}

func TestListLimitedPosts(t *testing.T) {
	r, _ := newTestRouter(t)
	uid := registerUser(t, r, "Alice", "alice@example.com")
	token := loginUser(t, r, "alice@example.com")
	for i := 0; i < 3; i++ {
		createPost(t, r, token, uid, fmt.Sprintf("p%d", i), fmt.Sprintf("Post %d", i))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/posts/limit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("n-posts", "2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	if posts := env.Data["posts"].([]interface{}); len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/posts/limit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("n-posts", "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-integer limit, got %d", w.Code)
	}
}

func TestListPostsByTagAndBusiness(t *testing.T) {
	r, _ := newTestRouter(t)
	uid := registerUser(t, r, "Alice", "alice@example.com")
	token := loginUser(t, r, "alice@example.com")

	w := doMultipart(t, r, http.MethodPost, "/api/posts", gin.H{
		"id": "p1", "title": "Tagged", "content": "body",
		"author":   gin.H{"id": fmt.Sprint(uid), "name": "Alice"},
		"tags":     []string{"golang"},
		"business": []string{"acme"},
	}, "", nil, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: got %d", w.Code)
	}
	createPost(t, r, token, uid, "p2", "Untagged")

	req := httptest.NewRequest(http.MethodGet, "/api/posts/tag", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("tag", "golang")
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	if w2.Code != http.StatusOK {
		t.Fatalf("tag filter: expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	env := decode(t, w2)
	if posts := env.Data["posts"].([]interface{}); len(posts) != 1 {
		t.Fatalf("tag filter: expected 1 post, got %d", len(posts))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/posts/tag", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, req)
	if w3.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without tag header, got %d", w3.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/posts/business", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("business", "acme")
	w4 := httptest.NewRecorder()
	r.ServeHTTP(w4, req)
	if w4.Code != http.StatusOK {
		t.Fatalf("business filter: expected 200, got %d", w4.Code)
	}
	env = decode(t, w4)
	if posts := env.Data["posts"].([]interface{}); len(posts) != 1 {
		t.Fatalf("business filter: expected 1 post, got %d", len(posts))
	}
}

func TestListUserPosts(t *testing.T) {
	r, _ := newTestRouter(t)
	uid := registerUser(t, r, "Alice", "alice@example.com")
	token := loginUser(t, r, "alice@example.com")
	createPost(t, r, token, uid, "p1", "Mine")

	w := doJSON(r, http.MethodGet, "/api/posts/myposts", nil, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without userId, got %d", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/api/posts/myposts?userId=99999", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for author without posts, got %d", w.Code)
	}

	w = doJSON(r, http.MethodGet, fmt.Sprintf("/api/posts/myposts?userId=%d", uid), nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	if posts := env.Data["posts"].([]interface{}); len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
}

func TestAddComment(t *testing.T) {
	r, _ := newTestRouter(t)
	uid := registerUser(t, r, "Alice", "alice@example.com")
	token := loginUser(t, r, "alice@example.com")
	postID := createPost(t, r, token, uid, "p1", "Commentable")

	path := fmt.Sprintf("/api/posts/addComment/%d", postID)

	w := doJSON(r, http.MethodPut, path, gin.H{"id": "c1", "author": "alice"}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing content, got %d", w.Code)
	}

	w = doJSON(r, http.MethodPut, path, gin.H{"id": "c1", "author": "alice", "content": "nice idea"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	post := env.Data["post"].(map[string]interface{})
	comments := post["comments"].([]interface{})
	if len(comments) != 1 {
		t.Fatalf("expected exactly 1 comment, got %d", len(comments))
	}
	comment := comments[0].(map[string]interface{})
	if comment["id"] != "c1" || comment["author"] != "alice" {
		t.Fatalf("unexpected comment: %v", comment)
	}
	if comment["upvotes"].(float64) != 0 || comment["downvotes"].(float64) != 0 {
		t.Fatalf("comment vote counters not zeroed: %v", comment)
	}
	if ts, _ := comment["timestamp"].(string); ts == "" {
		t.Fatalf("comment timestamp not set: %v", comment)
	}

	w = doJSON(r, http.MethodPut, "/api/posts/addComment/99999", gin.H{"id": "c2", "author": "alice", "content": "x"}, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing post, got %d", w.Code)
	}
}

func TestUserProfileFlow(t *testing.T) {
	r, _ := newTestRouter(t)
	aliceID := registerUser(t, r, "Alice", "alice@example.com")
	aliceToken := loginUser(t, r, "alice@example.com")
	registerUser(t, r, "Bob", "bob@example.com")
	bobToken := loginUser(t, r, "bob@example.com")

	// profile read never exposes the password hash
	w := doJSON(r, http.MethodGet, fmt.Sprintf("/user/%d", aliceID), nil, aliceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("get profile: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("profile response leaks password material: %s", w.Body.String())
	}
	env := decode(t, w)
	if env.Data["email"] != "alice@example.com" {
		t.Fatalf("email = %v", env.Data["email"])
	}

	// a stranger may not update someone else's profile
	w = doJSON(r, http.MethodPut, fmt.Sprintf("/user/%d", aliceID), gin.H{"name": "Mallory"}, bobToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign profile update, got %d", w.Code)
	}

	// the owner may, including a password change that still logs in
	w = doJSON(r, http.MethodPut, fmt.Sprintf("/user/%d", aliceID), gin.H{"name": "Alice B", "password": "secret-123"}, aliceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("self update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	loginUser(t, r, "alice@example.com")

	// deletion invalidates the account and its tokens
	w = doJSON(r, http.MethodDelete, fmt.Sprintf("/user/%d", aliceID), nil, aliceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(r, http.MethodGet, fmt.Sprintf("/user/%d", aliceID), nil, aliceToken)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted account token, got %d", w.Code)
	}
}

func TestListUsers(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/user/getAll", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no users, got %d", w.Code)
	}

	registerUser(t, r, "Alice", "alice@example.com")
	registerUser(t, r, "Bob", "bob@example.com")

	w = doJSON(r, http.MethodGet, "/user/getAll", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	users := env.Data["users"].([]interface{})
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("user list leaks password material")
	}
}

func TestIDPathParamsMustBeNumeric(t *testing.T) {
	r, _ := newTestRouter(t)
	uid := registerUser(t, r, "Alice", "alice@example.com")
	token := loginUser(t, r, "alice@example.com")
	postID := createPost(t, r, token, uid, "p1", "Reachable only by id")

	// Crafted id segments must never reach the database as query fragments.
	segments := []string{
		"id = 1 OR 1=1",
		fmt.Sprintf("id = %d AND (SELECT length(password_hash) FROM users LIMIT 1) > 0", postID),
		fmt.Sprintf("%d OR 1=1", postID),
		"NULL",
	}
	for _, seg := range segments {
		for _, path := range []string{
			"/api/posts/getPost/" + url.PathEscape(seg),
			"/api/posts/" + url.PathEscape(seg) + "/upvote",
			"/user/" + url.PathEscape(seg),
		} {
			method := http.MethodGet
			var body interface{}
			if strings.HasSuffix(path, "/upvote") {
				method = http.MethodPut
				body = gin.H{"increment": 1}
			}
			w := doJSON(r, method, path, body, token)
			if w.Code != http.StatusNotFound {
				t.Fatalf("%s %s: expected 404, got %d: %s", method, path, w.Code, w.Body.String())
			}
		}
	}

	// the plain numeric id still resolves
	w := doJSON(r, http.MethodGet, fmt.Sprintf("/api/posts/getPost/%d", postID), nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("numeric id lookup: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
